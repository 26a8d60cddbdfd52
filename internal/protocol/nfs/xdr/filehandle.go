package xdr

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
)

// ValidateHandle checks the size constraints of an NFSv3 file handle
// (RFC 1813 Section 2.3.3): non-empty and at most NFS3_FHSIZE bytes.
func ValidateHandle(handle []byte) error {
	if len(handle) == 0 {
		return fmt.Errorf("empty file handle")
	}
	if len(handle) > types.FHSize3 {
		return fmt.Errorf("file handle length %d exceeds %d", len(handle), types.FHSize3)
	}
	return nil
}

// HandleFromFileID builds an 8-byte handle carrying fileid. Handles are
// opaque to clients; this layout is only used by the in-process test
// server.
func HandleFromFileID(fileid uint64) []byte {
	handle := make([]byte, 8)
	binary.BigEndian.PutUint64(handle, fileid)
	return handle
}

// ExtractFileID reverses HandleFromFileID. It returns 0 for handles too
// short to contain an id.
func ExtractFileID(handle []byte) uint64 {
	if len(handle) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(handle[:8])
}
