package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ============================================================================
// XDR Decoding Helpers - Wire Format → Go Structures
// ============================================================================

// MaxOpaqueLength bounds variable-length opaque data read from the wire.
//
// Directory names, file handles and credentials are all far below this
// limit; anything larger is treated as a corrupt or hostile stream.
const MaxOpaqueLength = 1024 * 1024 // 1 MB

// DecodeOpaque decodes XDR variable-length opaque data.
//
// Per RFC 4506 Section 4.10 (Variable-Length Opaque Data):
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
//
// Parameters:
//   - reader: Input stream positioned at start of opaque data
//
// Returns:
//   - []byte: Decoded data
//   - error: Decoding error (EOF, short read, length over MaxOpaqueLength)
func DecodeOpaque(reader io.Reader) ([]byte, error) {
	return DecodeOpaqueMax(reader, MaxOpaqueLength)
}

// DecodeOpaqueMax is DecodeOpaque with a caller supplied upper bound, used
// for fields with a protocol maximum such as NFS3_FHSIZE.
func DecodeOpaqueMax(reader io.Reader, limit uint32) ([]byte, error) {
	var length uint32
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	if length > limit {
		return nil, fmt.Errorf("opaque length %d exceeds maximum %d", length, limit)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	// Example: length=5 → padding=3, length=8 → padding=0
	if padding := Padding(length); padding > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(padding)); err != nil {
			return nil, fmt.Errorf("skip padding: %w", err)
		}
	}

	return data, nil
}

// DecodeString decodes XDR variable-length string.
//
// Strings use the same encoding as opaque data. No character set is
// enforced: NFS names are byte strings and are returned unchanged.
func DecodeString(reader io.Reader) (string, error) {
	data, err := DecodeOpaque(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUint32 decodes a 32-bit unsigned integer.
func DecodeUint32(reader io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return v, nil
}

// DecodeUint64 decodes a 64-bit unsigned integer (XDR hyper).
func DecodeUint64(reader io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return v, nil
}

// DecodeBool decodes an XDR boolean. Any non-zero value is true.
func DecodeBool(reader io.Reader) (bool, error) {
	v, err := DecodeUint32(reader)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Padding returns the number of zero bytes that follow length bytes of
// opaque data to reach a 4-byte boundary.
func Padding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}
