package nfs

import (
	"bytes"
	"fmt"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	nfsxdr "github.com/marmos91/nfsusage/internal/protocol/nfs/xdr"
	"github.com/marmos91/nfsusage/internal/protocol/xdr"
)

// LookupRequest is LOOKUP3args (RFC 1813 Section 3.3.3).
type LookupRequest struct {
	DirHandle []byte
	Filename  string
}

// LookupResponse is LOOKUP3res.
type LookupResponse struct {
	Status     uint32
	FileHandle []byte             // only present if Status == NFS3OK
	Attr       *types.NFSFileAttr // only present if Status == NFS3OK
	DirAttr    *types.NFSFileAttr // post-op attributes for directory (optional)
}

// Encode serializes the request arguments.
func (req *LookupRequest) Encode() ([]byte, error) {
	if err := nfsxdr.ValidateHandle(req.DirHandle); err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	var buf bytes.Buffer
	if err := xdr.WriteXDROpaque(&buf, req.DirHandle); err != nil {
		return nil, fmt.Errorf("write dir handle: %w", err)
	}
	if err := xdr.WriteXDRString(&buf, req.Filename); err != nil {
		return nil, fmt.Errorf("write filename: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeLookupRequest parses LOOKUP3args.
func DecodeLookupRequest(data []byte) (*LookupRequest, error) {
	reader := bytes.NewReader(data)

	dirHandle, err := nfsxdr.DecodeFileHandle(reader)
	if err != nil {
		return nil, err
	}
	filename, err := xdr.DecodeString(reader)
	if err != nil {
		return nil, fmt.Errorf("read filename: %w", err)
	}

	return &LookupRequest{DirHandle: dirHandle, Filename: filename}, nil
}

// Encode serializes the result.
func (resp *LookupResponse) Encode() ([]byte, error) {
	var buf bytes.Buffer

	if err := xdr.WriteUint32(&buf, resp.Status); err != nil {
		return nil, fmt.Errorf("write status: %w", err)
	}

	if resp.Status == types.NFS3OK {
		if err := xdr.WriteXDROpaque(&buf, resp.FileHandle); err != nil {
			return nil, fmt.Errorf("write handle: %w", err)
		}
		if err := nfsxdr.EncodeOptionalFileAttr(&buf, resp.Attr); err != nil {
			return nil, fmt.Errorf("write object attributes: %w", err)
		}
	}

	// post_op_attr of the directory is present in both arms of the union
	if err := nfsxdr.EncodeOptionalFileAttr(&buf, resp.DirAttr); err != nil {
		return nil, fmt.Errorf("write dir attributes: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeLookupResponse parses LOOKUP3res.
func DecodeLookupResponse(data []byte) (*LookupResponse, error) {
	reader := bytes.NewReader(data)
	resp := &LookupResponse{}

	status, err := xdr.DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	resp.Status = status

	if status == types.NFS3OK {
		if resp.FileHandle, err = nfsxdr.DecodeFileHandle(reader); err != nil {
			return nil, err
		}
		if resp.Attr, err = nfsxdr.DecodeOptionalFileAttr(reader); err != nil {
			return nil, fmt.Errorf("object attributes: %w", err)
		}
	}

	if resp.DirAttr, err = nfsxdr.DecodeOptionalFileAttr(reader); err != nil {
		// Some servers omit trailing attributes on error replies.
		if status != types.NFS3OK {
			return resp, nil
		}
		return nil, fmt.Errorf("dir attributes: %w", err)
	}

	return resp, nil
}
