package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/nfsusage/internal/protocol/xdr"
	goxdr "github.com/rasky/go-xdr/xdr2"
)

// ============================================================================
// Client side: CALL encoding and REPLY decoding
// ============================================================================

// EncodeCall builds a complete record-marked CALL message.
//
// The returned slice is ready to be written to a TCP stream: a single
// last-fragment header followed by the CALL header and the already encoded
// procedure arguments.
func EncodeCall(xid, program, version, procedure uint32, cred OpaqueAuth, args []byte) ([]byte, error) {
	call := RPCCallMessage{
		XID:        xid,
		MsgType:    RPCCall,
		RPCVersion: RPCVersion,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       cred,
		Verf:       NullAuth(),
	}

	buf := bytes.NewBuffer(make([]byte, 4, 64+len(cred.Body)+len(args)))
	if _, err := goxdr.Marshal(buf, &call); err != nil {
		return nil, fmt.Errorf("marshal call: %w", err)
	}
	buf.Write(args)

	out := buf.Bytes()
	size := len(out) - 4
	if size > FragmentSizeMask {
		return nil, fmt.Errorf("call of %d bytes does not fit in one fragment", size)
	}
	binary.BigEndian.PutUint32(out[:4], LastFragmentFlag|uint32(size))
	return out, nil
}

// Reply is a decoded REPLY header. Body holds the procedure results and is
// only meaningful when Err() is nil.
type Reply struct {
	XID        uint32
	ReplyState uint32
	AcceptStat uint32
	RejectStat uint32
	AuthStat   uint32
	Low, High  uint32
	Body       []byte
}

// ReplyError describes an RPC-level failure (the procedure did not run).
type ReplyError struct {
	XID        uint32
	ReplyState uint32
	Stat       uint32
	Low, High  uint32
}

func (e *ReplyError) Error() string {
	if e.ReplyState == RPCMsgDenied {
		switch e.Stat {
		case RPCMismatch:
			return fmt.Sprintf("rpc: call denied, RPC version mismatch (server supports %d-%d)", e.Low, e.High)
		case RPCAuthErr:
			return "rpc: call denied, authentication error"
		}
		return fmt.Sprintf("rpc: call denied (reject_stat=%d)", e.Stat)
	}

	switch e.Stat {
	case RPCProgUnavail:
		return "rpc: program unavailable"
	case RPCProgMismatch:
		return fmt.Sprintf("rpc: program version mismatch (server supports %d-%d)", e.Low, e.High)
	case RPCProcUnavail:
		return "rpc: procedure unavailable"
	case RPCGarbageArgs:
		return "rpc: server could not decode arguments"
	case RPCSystemErr:
		return "rpc: server system error"
	}
	return fmt.Sprintf("rpc: accept_stat=%d", e.Stat)
}

// Err returns a *ReplyError unless the reply is an accepted SUCCESS.
func (r *Reply) Err() error {
	if r.ReplyState == RPCMsgAccepted && r.AcceptStat == RPCSuccess {
		return nil
	}
	e := &ReplyError{XID: r.XID, ReplyState: r.ReplyState, Low: r.Low, High: r.High}
	if r.ReplyState == RPCMsgDenied {
		e.Stat = r.RejectStat
	} else {
		e.Stat = r.AcceptStat
	}
	return e
}

// PeekXID returns the transaction id of a record without decoding it.
func PeekXID(record []byte) (uint32, error) {
	if len(record) < 4 {
		return 0, fmt.Errorf("record too short for xid: %d bytes", len(record))
	}
	return binary.BigEndian.Uint32(record[:4]), nil
}

// DecodeReply decodes a reassembled REPLY record (without record marks).
func DecodeReply(record []byte) (*Reply, error) {
	r := bytes.NewReader(record)
	reply := &Reply{}

	var err error
	if reply.XID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read xid: %w", err)
	}

	msgType, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read msg type: %w", err)
	}
	if msgType != RPCReply {
		return nil, fmt.Errorf("expected REPLY (1), got %d", msgType)
	}

	if reply.ReplyState, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read reply state: %w", err)
	}

	switch reply.ReplyState {
	case RPCMsgAccepted:
		// Verifier is ignored: only AUTH_NULL/AUTH_UNIX are used, neither
		// carries a meaningful server verifier.
		if _, err := xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read verifier flavor: %w", err)
		}
		if _, err := xdr.DecodeOpaqueMax(r, 400); err != nil {
			return nil, fmt.Errorf("read verifier body: %w", err)
		}
		if reply.AcceptStat, err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read accept stat: %w", err)
		}
		if reply.AcceptStat == RPCProgMismatch {
			if err := decodeMismatch(r, reply); err != nil {
				return nil, err
			}
		}

	case RPCMsgDenied:
		if reply.RejectStat, err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read reject stat: %w", err)
		}
		switch reply.RejectStat {
		case RPCMismatch:
			if err := decodeMismatch(r, reply); err != nil {
				return nil, err
			}
		case RPCAuthErr:
			if reply.AuthStat, err = xdr.DecodeUint32(r); err != nil {
				return nil, fmt.Errorf("read auth stat: %w", err)
			}
		}

	default:
		return nil, fmt.Errorf("invalid reply state %d", reply.ReplyState)
	}

	reply.Body = record[len(record)-r.Len():]
	return reply, nil
}

func decodeMismatch(r *bytes.Reader, reply *Reply) error {
	var err error
	if reply.Low, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("read mismatch low: %w", err)
	}
	if reply.High, err = xdr.DecodeUint32(r); err != nil {
		return fmt.Errorf("read mismatch high: %w", err)
	}
	return nil
}
