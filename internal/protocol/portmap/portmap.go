// Package portmap encodes the portmapper (RFC 1833, program 100000
// version 2) GETPORT call used to locate the MOUNT and NFS services.
package portmap

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Procedure numbers of portmap version 2.
const (
	ProcNull    = 0
	ProcSet     = 1
	ProcUnset   = 2
	ProcGetPort = 3
	ProcDump    = 4
)

// ProcName returns the name of a portmap procedure.
func ProcName(proc uint32) string {
	switch proc {
	case ProcNull:
		return "NULL"
	case ProcSet:
		return "SET"
	case ProcUnset:
		return "UNSET"
	case ProcGetPort:
		return "GETPORT"
	case ProcDump:
		return "DUMP"
	}
	return "UNKNOWN"
}

// Transport protocol numbers carried in a mapping.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// Mapping is struct mapping, the GETPORT argument.
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol uint32
	Port     uint32
}

// GetPortResponse is the GETPORT result. Port 0 means the program is not
// registered.
type GetPortResponse struct {
	Port uint32
}

// Encode serializes the mapping.
func (m *Mapping) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, m); err != nil {
		return nil, fmt.Errorf("marshal mapping: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMapping parses a mapping.
func DecodeMapping(data []byte) (*Mapping, error) {
	m := &Mapping{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), m); err != nil {
		return nil, fmt.Errorf("unmarshal mapping: %w", err)
	}
	return m, nil
}

// Encode serializes the GETPORT result.
func (resp *GetPortResponse) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, resp); err != nil {
		return nil, fmt.Errorf("marshal getport result: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeGetPortResponse parses the GETPORT result and checks the port is
// in range.
func DecodeGetPortResponse(data []byte) (*GetPortResponse, error) {
	resp := &GetPortResponse{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), resp); err != nil {
		return nil, fmt.Errorf("unmarshal getport result: %w", err)
	}
	if resp.Port > 65535 {
		return nil, fmt.Errorf("getport returned invalid port %d", resp.Port)
	}
	return resp, nil
}
