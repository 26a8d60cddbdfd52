package nfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	nfsxdr "github.com/marmos91/nfsusage/internal/protocol/nfs/xdr"
	"github.com/marmos91/nfsusage/internal/protocol/xdr"
)

// ReadDirPlusRequest is READDIRPLUS3args (RFC 1813 Section 3.3.17).
//
// Cookie 0 with a zeroed verifier starts a listing; later calls pass the
// cookie of the last entry received and the verifier of the first reply.
type ReadDirPlusRequest struct {
	DirHandle  []byte
	Cookie     uint64
	CookieVerf [types.CookieVerfSize]byte
	DirCount   uint32
	MaxCount   uint32
}

// ReadDirPlusResponse is READDIRPLUS3res. Entries and Eof are only
// meaningful when Status == NFS3OK.
type ReadDirPlusResponse struct {
	Status     uint32
	DirAttr    *types.NFSFileAttr
	CookieVerf [types.CookieVerfSize]byte
	Entries    []types.DirEntryPlus
	Eof        bool
}

// maxEntriesPerReply bounds how many entries a reply may carry. A
// maxcount of 4MB with the shortest possible entry stays well below it.
const maxEntriesPerReply = 1 << 17

// Encode serializes the request arguments.
func (req *ReadDirPlusRequest) Encode() ([]byte, error) {
	if err := nfsxdr.ValidateHandle(req.DirHandle); err != nil {
		return nil, fmt.Errorf("readdirplus: %w", err)
	}

	var buf bytes.Buffer
	if err := xdr.WriteXDROpaque(&buf, req.DirHandle); err != nil {
		return nil, fmt.Errorf("write dir handle: %w", err)
	}
	if err := xdr.WriteUint64(&buf, req.Cookie); err != nil {
		return nil, fmt.Errorf("write cookie: %w", err)
	}
	buf.Write(req.CookieVerf[:])
	if err := xdr.WriteUint32(&buf, req.DirCount); err != nil {
		return nil, fmt.Errorf("write dircount: %w", err)
	}
	if err := xdr.WriteUint32(&buf, req.MaxCount); err != nil {
		return nil, fmt.Errorf("write maxcount: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeReadDirPlusRequest parses READDIRPLUS3args.
func DecodeReadDirPlusRequest(data []byte) (*ReadDirPlusRequest, error) {
	reader := bytes.NewReader(data)
	req := &ReadDirPlusRequest{}

	var err error
	if req.DirHandle, err = nfsxdr.DecodeFileHandle(reader); err != nil {
		return nil, err
	}
	if req.Cookie, err = xdr.DecodeUint64(reader); err != nil {
		return nil, fmt.Errorf("read cookie: %w", err)
	}
	if _, err := io.ReadFull(reader, req.CookieVerf[:]); err != nil {
		return nil, fmt.Errorf("read cookieverf: %w", err)
	}
	if req.DirCount, err = xdr.DecodeUint32(reader); err != nil {
		return nil, fmt.Errorf("read dircount: %w", err)
	}
	if req.MaxCount, err = xdr.DecodeUint32(reader); err != nil {
		return nil, fmt.Errorf("read maxcount: %w", err)
	}
	return req, nil
}

// Encode serializes the result.
//
// Success layout:
//
//	status, post_op_attr dir_attributes, cookieverf3
//	{ value_follows=1, fileid, name, cookie, post_op_attr, post_op_fh3 }*
//	value_follows=0, eof
func (resp *ReadDirPlusResponse) Encode() ([]byte, error) {
	var buf bytes.Buffer

	if err := xdr.WriteUint32(&buf, resp.Status); err != nil {
		return nil, fmt.Errorf("write status: %w", err)
	}
	if err := nfsxdr.EncodeOptionalFileAttr(&buf, resp.DirAttr); err != nil {
		return nil, fmt.Errorf("write dir attributes: %w", err)
	}
	if resp.Status != types.NFS3OK {
		return buf.Bytes(), nil
	}

	buf.Write(resp.CookieVerf[:])

	for i := range resp.Entries {
		entry := &resp.Entries[i]
		if err := xdr.WriteBool(&buf, true); err != nil {
			return nil, err
		}
		if err := xdr.WriteUint64(&buf, entry.Fileid); err != nil {
			return nil, fmt.Errorf("write fileid: %w", err)
		}
		if err := xdr.WriteXDRString(&buf, entry.Name); err != nil {
			return nil, fmt.Errorf("write name: %w", err)
		}
		if err := xdr.WriteUint64(&buf, entry.Cookie); err != nil {
			return nil, fmt.Errorf("write cookie: %w", err)
		}
		if err := nfsxdr.EncodeOptionalFileAttr(&buf, entry.Attr); err != nil {
			return nil, fmt.Errorf("write entry attributes: %w", err)
		}
		if err := nfsxdr.EncodeOptionalOpaque(&buf, entry.Handle); err != nil {
			return nil, fmt.Errorf("write entry handle: %w", err)
		}
	}

	if err := xdr.WriteBool(&buf, false); err != nil {
		return nil, err
	}
	if err := xdr.WriteBool(&buf, resp.Eof); err != nil {
		return nil, fmt.Errorf("write eof: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeReadDirPlusResponse parses READDIRPLUS3res.
func DecodeReadDirPlusResponse(data []byte) (*ReadDirPlusResponse, error) {
	reader := bytes.NewReader(data)
	resp := &ReadDirPlusResponse{}

	var err error
	if resp.Status, err = xdr.DecodeUint32(reader); err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if resp.DirAttr, err = nfsxdr.DecodeOptionalFileAttr(reader); err != nil {
		if resp.Status != types.NFS3OK {
			return resp, nil
		}
		return nil, fmt.Errorf("dir attributes: %w", err)
	}
	if resp.Status != types.NFS3OK {
		return resp, nil
	}

	if _, err := io.ReadFull(reader, resp.CookieVerf[:]); err != nil {
		return nil, fmt.Errorf("read cookieverf: %w", err)
	}

	for {
		follows, err := xdr.DecodeBool(reader)
		if err != nil {
			return nil, fmt.Errorf("read value_follows: %w", err)
		}
		if !follows {
			break
		}
		if len(resp.Entries) >= maxEntriesPerReply {
			return nil, fmt.Errorf("reply exceeds %d entries", maxEntriesPerReply)
		}

		var entry types.DirEntryPlus
		if entry.Fileid, err = xdr.DecodeUint64(reader); err != nil {
			return nil, fmt.Errorf("read fileid: %w", err)
		}
		if entry.Name, err = xdr.DecodeString(reader); err != nil {
			return nil, fmt.Errorf("read name: %w", err)
		}
		if entry.Cookie, err = xdr.DecodeUint64(reader); err != nil {
			return nil, fmt.Errorf("read cookie: %w", err)
		}
		if entry.Attr, err = nfsxdr.DecodeOptionalFileAttr(reader); err != nil {
			return nil, fmt.Errorf("entry %q attributes: %w", entry.Name, err)
		}
		if entry.Handle, err = nfsxdr.DecodeOptionalFileHandle(reader); err != nil {
			return nil, fmt.Errorf("entry %q handle: %w", entry.Name, err)
		}
		resp.Entries = append(resp.Entries, entry)
	}

	if resp.Eof, err = xdr.DecodeBool(reader); err != nil {
		return nil, fmt.Errorf("read eof: %w", err)
	}

	return resp, nil
}
