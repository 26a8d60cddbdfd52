package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	"github.com/marmos91/nfsusage/internal/protocol/xdr"
)

// ============================================================================
// XDR Encoding Helpers - Go Structures → Wire Format
// ============================================================================

// EncodeOptionalOpaque encodes optional XDR opaque data.
//
// Per RFC 1813 Section 2.4 (Optional Data):
// Format: [present:uint32] if present=1: [length:uint32][data][padding]
//
// A nil or empty slice is encoded as "not present". This is the shape of
// post_op_fh3 in LOOKUP and READDIRPLUS replies.
func EncodeOptionalOpaque(buf *bytes.Buffer, data []byte) error {
	if len(data) == 0 {
		return xdr.WriteBool(buf, false)
	}
	if err := xdr.WriteBool(buf, true); err != nil {
		return fmt.Errorf("write present flag: %w", err)
	}
	return xdr.WriteXDROpaque(buf, data)
}

// EncodeOptionalFileAttr encodes post_op_attr: a present flag followed by
// fattr3 when attr is not nil.
func EncodeOptionalFileAttr(buf *bytes.Buffer, attr *types.NFSFileAttr) error {
	if attr == nil {
		return xdr.WriteBool(buf, false)
	}
	if err := xdr.WriteBool(buf, true); err != nil {
		return fmt.Errorf("write present flag: %w", err)
	}
	return EncodeFileAttr(buf, attr)
}

// EncodeFileAttr encodes fattr3 (RFC 1813 Section 2.3.1).
//
// Wire layout, 84 bytes:
//
//	type, mode, nlink, uid, gid          uint32 x5
//	size, used                           uint64 x2
//	rdev                                 specdata3 (uint32 x2)
//	fsid, fileid                         uint64 x2
//	atime, mtime, ctime                  nfstime3 (uint32 x2) x3
func EncodeFileAttr(buf *bytes.Buffer, attr *types.NFSFileAttr) error {
	if attr == nil {
		return fmt.Errorf("file attributes are nil")
	}

	fields := []struct {
		name  string
		value any
	}{
		{"type", attr.Type},
		{"mode", attr.Mode},
		{"nlink", attr.Nlink},
		{"uid", attr.UID},
		{"gid", attr.GID},
		{"size", attr.Size},
		{"used", attr.Used},
		{"rdev", attr.Rdev},
		{"fsid", attr.Fsid},
		{"fileid", attr.Fileid},
		{"atime", attr.Atime},
		{"mtime", attr.Mtime},
		{"ctime", attr.Ctime},
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f.value); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	return nil
}
