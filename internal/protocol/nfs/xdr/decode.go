package xdr

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	"github.com/marmos91/nfsusage/internal/protocol/xdr"
)

// ============================================================================
// XDR Decoding Helpers - Wire Format → Go Structures
// ============================================================================

// FileAttrSize is the encoded size of fattr3 in bytes.
const FileAttrSize = 84

// DecodeFileAttr decodes fattr3. The layout mirrors EncodeFileAttr.
func DecodeFileAttr(reader io.Reader) (*types.NFSFileAttr, error) {
	attr := &types.NFSFileAttr{}
	if err := binary.Read(reader, binary.BigEndian, attr); err != nil {
		return nil, fmt.Errorf("read fattr3: %w", err)
	}
	return attr, nil
}

// DecodeOptionalFileAttr decodes post_op_attr. It returns nil when the
// server chose not to send attributes.
func DecodeOptionalFileAttr(reader io.Reader) (*types.NFSFileAttr, error) {
	present, err := xdr.DecodeBool(reader)
	if err != nil {
		return nil, fmt.Errorf("read attributes_follow: %w", err)
	}
	if !present {
		return nil, nil
	}
	return DecodeFileAttr(reader)
}

// DecodeFileHandle decodes nfs_fh3, rejecting handles longer than
// NFS3_FHSIZE.
func DecodeFileHandle(reader io.Reader) ([]byte, error) {
	handle, err := xdr.DecodeOpaqueMax(reader, types.FHSize3)
	if err != nil {
		return nil, fmt.Errorf("read file handle: %w", err)
	}
	return handle, nil
}

// DecodeOptionalFileHandle decodes post_op_fh3.
func DecodeOptionalFileHandle(reader io.Reader) ([]byte, error) {
	present, err := xdr.DecodeBool(reader)
	if err != nil {
		return nil, fmt.Errorf("read handle_follows: %w", err)
	}
	if !present {
		return nil, nil
	}
	return DecodeFileHandle(reader)
}

// SkipWccAttr consumes pre_op_attr, which some servers send in place of
// post_op_attr in error replies of modifying procedures. Only used by
// tolerant decoders.
func SkipWccAttr(reader io.Reader) error {
	present, err := xdr.DecodeBool(reader)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	// size3 + nfstime3 + nfstime3
	_, err = io.CopyN(io.Discard, reader, 8+8+8)
	return err
}
