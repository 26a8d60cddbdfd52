package rpc

import "fmt"

// RPCCallMessage is the fixed part of an ONC RPC CALL header.
// Procedure arguments follow it on the wire.
type RPCCallMessage struct {
	XID        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
}

// RPCReplyMessage is the header of an accepted reply. Denied replies have a
// different layout and are handled by DecodeReply.
type RPCReplyMessage struct {
	XID        uint32
	MsgType    uint32 // 1 = REPLY
	ReplyState uint32 // 0 = MSG_ACCEPTED
	Verf       OpaqueAuth
	AcceptStat uint32 // 0 = SUCCESS
}

type OpaqueAuth struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}

func (c *RPCCallMessage) GetAuthFlavor() uint32 {
	return c.Cred.Flavor
}

func (c *RPCCallMessage) GetAuthBody() []byte {
	return c.Cred.Body
}

// UnixAuth is the AUTH_UNIX (AUTH_SYS) credential body.
type UnixAuth struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

func (a *UnixAuth) String() string {
	return fmt.Sprintf("UnixAuth{machine=%s uid=%d gid=%d gids=%v}",
		a.MachineName, a.UID, a.GID, a.GIDs)
}

// NullAuth returns an AUTH_NULL credential or verifier.
func NullAuth() OpaqueAuth {
	return OpaqueAuth{Flavor: AuthNull, Body: []byte{}}
}
