package mount

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// UmountRequest is the dirpath argument of UMNT. UMNT has a void result.
type UmountRequest struct {
	DirPath string
}

// Encode serializes the UMNT argument.
func (req *UmountRequest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, req); err != nil {
		return nil, fmt.Errorf("marshal umount request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeUmountRequest parses the UMNT argument.
func DecodeUmountRequest(data []byte) (*UmountRequest, error) {
	req := &UmountRequest{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), req); err != nil {
		return nil, fmt.Errorf("unmarshal umount request: %w", err)
	}
	return req, nil
}
