package rpc

import (
	"bytes"
	"fmt"

	"github.com/marmos91/nfsusage/internal/protocol/xdr"
)

// NewUnixCredential encodes auth as an AUTH_UNIX credential.
func NewUnixCredential(auth *UnixAuth) (OpaqueAuth, error) {
	if len(auth.MachineName) > MaxMachineNameLen {
		return OpaqueAuth{}, fmt.Errorf("machine name too long: %d bytes", len(auth.MachineName))
	}
	if len(auth.GIDs) > MaxUnixGIDs {
		return OpaqueAuth{}, fmt.Errorf("too many gids: %d", len(auth.GIDs))
	}

	var buf bytes.Buffer
	if err := xdr.WriteUint32(&buf, auth.Stamp); err != nil {
		return OpaqueAuth{}, err
	}
	if err := xdr.WriteXDRString(&buf, auth.MachineName); err != nil {
		return OpaqueAuth{}, err
	}
	if err := xdr.WriteUint32(&buf, auth.UID); err != nil {
		return OpaqueAuth{}, err
	}
	if err := xdr.WriteUint32(&buf, auth.GID); err != nil {
		return OpaqueAuth{}, err
	}
	if err := xdr.WriteUint32(&buf, uint32(len(auth.GIDs))); err != nil {
		return OpaqueAuth{}, err
	}
	for _, gid := range auth.GIDs {
		if err := xdr.WriteUint32(&buf, gid); err != nil {
			return OpaqueAuth{}, err
		}
	}

	return OpaqueAuth{Flavor: AuthUnix, Body: buf.Bytes()}, nil
}

// ParseUnixAuth decodes an AUTH_UNIX credential body.
func ParseUnixAuth(body []byte) (*UnixAuth, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty AUTH_UNIX body")
	}

	r := bytes.NewReader(body)
	auth := &UnixAuth{}

	var err error
	if auth.Stamp, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read stamp: %w", err)
	}

	name, err := xdr.DecodeOpaqueMax(r, MaxMachineNameLen)
	if err != nil {
		return nil, fmt.Errorf("machine name too long or truncated: %w", err)
	}
	auth.MachineName = string(name)

	if auth.UID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read uid: %w", err)
	}
	if auth.GID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read gid: %w", err)
	}

	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read gid count: %w", err)
	}
	if count > MaxUnixGIDs {
		return nil, fmt.Errorf("too many gids: %d", count)
	}

	auth.GIDs = make([]uint32, count)
	for i := range auth.GIDs {
		if auth.GIDs[i], err = xdr.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("read gid %d: %w", i, err)
		}
	}

	return auth, nil
}
