package nfstest

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

type conn struct {
	server *Server
	conn   net.Conn
	wmu    sync.Mutex
}

type fragmentHeader struct {
	IsLast bool
	Length uint32
}

func (c *conn) serve(ctx context.Context) {
	defer func() {
		c.server.forget(c.conn)
		_ = c.conn.Close()
	}()
	logger.Debug("New connection from %s", c.conn.RemoteAddr().String())

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := c.handleRequest(); err != nil {
				if err != io.EOF {
					logger.Debug("Error handling request: %v", err)
				}
				return
			}
		}
	}
}

func (c *conn) handleRequest() error {
	message, err := c.readRecord()
	if err != nil {
		return err
	}

	call, err := rpc.ReadCall(message)
	if err != nil {
		logger.Debug("Error parsing RPC call: %v", err)
		return nil
	}

	logger.Debug("RPC Call: XID=0x%x Program=%d Version=%d Procedure=%d",
		call.XID, call.Program, call.Version, call.Procedure)

	if call.GetAuthFlavor() == rpc.AuthUnix {
		if auth, err := rpc.ParseUnixAuth(call.GetAuthBody()); err == nil {
			c.server.mu.Lock()
			c.server.lastAuth = auth
			c.server.mu.Unlock()
		}
	}

	procedureData, err := rpc.ReadData(message, call)
	if err != nil {
		return fmt.Errorf("extract procedure data: %w", err)
	}

	return c.handleRPCCall(call, procedureData)
}

// readRecord reads fragments until the last one.
func (c *conn) readRecord() ([]byte, error) {
	var record []byte
	for {
		header, err := c.readFragmentHeader()
		if err != nil {
			return nil, err
		}
		if len(record)+int(header.Length) > rpc.MaxRecordSize {
			return nil, fmt.Errorf("record exceeds %d bytes", rpc.MaxRecordSize)
		}
		fragment := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, fragment); err != nil {
			return nil, fmt.Errorf("read message: %w", err)
		}
		record = append(record, fragment...)
		if header.IsLast {
			return record, nil
		}
	}
}

func (c *conn) readFragmentHeader() (*fragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.conn, buf[:]); err != nil {
		return nil, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return &fragmentHeader{
		IsLast: header&rpc.LastFragmentFlag != 0,
		Length: header & rpc.FragmentSizeMask,
	}, nil
}

func (c *conn) handleRPCCall(call *rpc.RPCCallMessage, procedureData []byte) error {
	var (
		replyData []byte
		err       error
	)

	switch {
	case call.Program == rpc.ProgramPortmap && call.Version == rpc.PortmapVersion:
		replyData, err = c.handlePortmapProcedure(call.Procedure, procedureData)
	case call.Program == rpc.ProgramMount && call.Version == rpc.MountVersion:
		replyData, err = c.handleMountProcedure(call.Procedure, procedureData)
	case call.Program == rpc.ProgramNFS && call.Version == rpc.NFSVersion3:
		if c.server.replyDelay > 0 {
			time.Sleep(c.server.replyDelay)
		}
		replyData, err = c.handleNFSProcedure(call.Procedure, procedureData)
	default:
		logger.Debug("Unknown program: %d version %d", call.Program, call.Version)
		return c.sendError(call.XID, rpc.RPCProgUnavail)
	}

	if err == errProcUnavail {
		return c.sendError(call.XID, rpc.RPCProcUnavail)
	}
	if err != nil {
		logger.Debug("Handler error: %v", err)
		return c.sendError(call.XID, rpc.RPCSystemErr)
	}

	return c.sendReply(call.XID, replyData)
}

func (c *conn) sendReply(xid uint32, data []byte) error {
	reply, err := rpc.MakeSuccessReply(xid, data)
	if err != nil {
		return fmt.Errorf("make reply: %w", err)
	}
	return c.write(xid, reply)
}

func (c *conn) sendError(xid, acceptStat uint32) error {
	reply, err := rpc.MakeErrorReply(xid, acceptStat)
	if err != nil {
		return fmt.Errorf("make reply: %w", err)
	}
	return c.write(xid, reply)
}

func (c *conn) write(xid uint32, reply []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(reply); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	logger.Debug("Sent reply for XID=0x%x", xid)
	return nil
}
