package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// XDR Encoding Helpers - Go Types → Wire Format
// ============================================================================

// WriteXDROpaque encodes opaque data in XDR format: length + data + padding.
//
// Example:
//
//	[]byte{0x01, 0x02, 0x03} → [00 00 00 03][01 02 03][00] (8 bytes total)
func WriteXDROpaque(buf *bytes.Buffer, data []byte) error {
	length := uint32(len(data))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write opaque length: %w", err)
	}

	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write opaque data: %w", err)
	}

	return WriteXDRPadding(buf, length)
}

// WriteXDRString encodes a string with the opaque layout.
func WriteXDRString(buf *bytes.Buffer, s string) error {
	length := uint32(len(s))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}

	if _, err := buf.WriteString(s); err != nil {
		return fmt.Errorf("write string data: %w", err)
	}

	return WriteXDRPadding(buf, length)
}

// WriteXDRPadding writes the zero bytes needed after dataLen bytes.
func WriteXDRPadding(buf *bytes.Buffer, dataLen uint32) error {
	for range Padding(dataLen) {
		if err := buf.WriteByte(0); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}
	return nil
}

func WriteUint32(buf *bytes.Buffer, v uint32) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write uint32: %w", err)
	}
	return nil
}

func WriteUint64(buf *bytes.Buffer, v uint64) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write uint64: %w", err)
	}
	return nil
}

// WriteBool encodes true as 1 and false as 0.
func WriteBool(buf *bytes.Buffer, v bool) error {
	var n uint32
	if v {
		n = 1
	}
	return WriteUint32(buf, n)
}
