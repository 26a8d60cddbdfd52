package mount

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"

	nfsxdr "github.com/marmos91/nfsusage/internal/protocol/nfs/xdr"
	xdrutil "github.com/marmos91/nfsusage/internal/protocol/xdr"
)

// MountRequest is the dirpath argument of MNT.
type MountRequest struct {
	DirPath string
}

// MountResponse is mountres3. FileHandle and AuthFlavors are only present
// when Status == MountOK.
type MountResponse struct {
	Status      uint32
	FileHandle  []byte
	AuthFlavors []int32
}

// Encode serializes the MNT argument.
func (req *MountRequest) Encode() ([]byte, error) {
	if len(req.DirPath) > MaxPathLen {
		return nil, fmt.Errorf("mount path length %d exceeds %d", len(req.DirPath), MaxPathLen)
	}
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, req); err != nil {
		return nil, fmt.Errorf("marshal mount request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMountRequest parses the MNT argument.
func DecodeMountRequest(data []byte) (*MountRequest, error) {
	req := &MountRequest{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), req); err != nil {
		return nil, fmt.Errorf("unmarshal mount request: %w", err)
	}
	return req, nil
}

// Encode serializes mountres3.
func (resp *MountResponse) Encode() ([]byte, error) {
	var buf bytes.Buffer

	if err := xdrutil.WriteUint32(&buf, resp.Status); err != nil {
		return nil, fmt.Errorf("write status: %w", err)
	}
	if resp.Status != MountOK {
		return buf.Bytes(), nil
	}

	if err := xdrutil.WriteXDROpaque(&buf, resp.FileHandle); err != nil {
		return nil, fmt.Errorf("write handle: %w", err)
	}
	if err := xdrutil.WriteUint32(&buf, uint32(len(resp.AuthFlavors))); err != nil {
		return nil, fmt.Errorf("write auth count: %w", err)
	}
	for _, flavor := range resp.AuthFlavors {
		if err := xdrutil.WriteUint32(&buf, uint32(flavor)); err != nil {
			return nil, fmt.Errorf("write auth flavor: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeMountResponse parses mountres3.
func DecodeMountResponse(data []byte) (*MountResponse, error) {
	reader := bytes.NewReader(data)
	resp := &MountResponse{}

	status, err := xdrutil.DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	resp.Status = status
	if status != MountOK {
		return resp, nil
	}

	if resp.FileHandle, err = nfsxdr.DecodeFileHandle(reader); err != nil {
		return nil, err
	}

	count, err := xdrutil.DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read auth count: %w", err)
	}
	if count > 64 {
		return nil, fmt.Errorf("auth flavor count %d too large", count)
	}
	for range count {
		flavor, err := xdrutil.DecodeUint32(reader)
		if err != nil {
			return nil, fmt.Errorf("read auth flavor: %w", err)
		}
		resp.AuthFlavors = append(resp.AuthFlavors, int32(flavor))
	}

	return resp, nil
}
