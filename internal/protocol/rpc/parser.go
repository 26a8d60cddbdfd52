package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// ReadCall decodes the CALL header at the start of a record.
func ReadCall(data []byte) (*RPCCallMessage, error) {
	call := &RPCCallMessage{}
	_, err := xdr.Unmarshal(bytes.NewReader(data), call)
	if err != nil {
		return nil, fmt.Errorf("unmarshal RPC call: %w", err)
	}

	if call.MsgType != RPCCall {
		return nil, fmt.Errorf("expected CALL (0), got %d", call.MsgType)
	}

	return call, nil
}

// ReadData returns the procedure arguments that follow the CALL header.
func ReadData(message []byte, call *RPCCallMessage) ([]byte, error) {
	// XID, MsgType, RPCVersion, Program, Version, Procedure = 6 * 4 bytes
	offset := 24

	// Credential and verifier: flavor + length + body + padding each
	for _, auth := range []OpaqueAuth{call.Cred, call.Verf} {
		bodyLen := uint32(len(auth.Body))
		offset += 8 + int(bodyLen) + int(XdrPadding(bodyLen))
	}

	if offset > len(message) {
		return nil, fmt.Errorf("call header (%d bytes) longer than message (%d bytes)", offset, len(message))
	}

	return message[offset:], nil
}

// MakeSuccessReply builds a record-marked accepted SUCCESS reply carrying data.
func MakeSuccessReply(xid uint32, data []byte) ([]byte, error) {
	return makeReply(xid, RPCSuccess, data)
}

// MakeErrorReply builds a record-marked accepted reply with a failing
// accept_stat (PROG_UNAVAIL, PROC_UNAVAIL, GARBAGE_ARGS, SYSTEM_ERR).
func MakeErrorReply(xid uint32, acceptStat uint32) ([]byte, error) {
	return makeReply(xid, acceptStat, nil)
}

func makeReply(xid, acceptStat uint32, data []byte) ([]byte, error) {
	reply := RPCReplyMessage{
		XID:        xid,
		MsgType:    RPCReply,
		ReplyState: RPCMsgAccepted,
		Verf:       NullAuth(),
		AcceptStat: acceptStat,
	}

	// Reply header = 24 bytes with an empty verifier
	buf := bytes.NewBuffer(make([]byte, 4, 4+24+len(data)))
	if _, err := xdr.Marshal(buf, &reply); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	buf.Write(data)

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[:4], LastFragmentFlag|uint32(len(out)-4))
	return out, nil
}

// XdrPadding calculates XDR padding bytes needed for 4-byte alignment.
func XdrPadding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}
