package rpc

// RPC Program Numbers
//
// Reference: RFC 1833 (portmap), RFC 1813 (NFS v3 and MOUNT v3)
const (
	// ProgramPortmap is the port mapper program number. It listens on
	// PortmapPort and maps program/version/protocol to a TCP port.
	ProgramPortmap = 100000

	// ProgramNFS is the NFS program number.
	ProgramNFS = 100003

	// ProgramMount is the MOUNT program used to obtain the export root handle.
	ProgramMount = 100005
)

// Program versions spoken by the client.
const (
	PortmapVersion = 2
	MountVersion   = 3
	NFSVersion3    = 3
)

// PortmapPort is the well-known portmapper TCP port.
const PortmapPort = 111

// RPCVersion is the only ONC RPC version in use (RFC 5531).
const RPCVersion = 2

// RPC Message Types
const (
	RPCCall  = 0
	RPCReply = 1
)

// RPC Reply States
const (
	// RPCMsgAccepted: the server ran (or tried to run) the procedure and an
	// accept_stat follows the verifier.
	RPCMsgAccepted = 0

	// RPCMsgDenied: RPC version mismatch or authentication failure; a
	// reject_stat follows.
	RPCMsgDenied = 1
)

// RPC Accept Status (RFC 5531 Section 9)
const (
	RPCSuccess      = 0
	RPCProgUnavail  = 1
	RPCProgMismatch = 2
	RPCProcUnavail  = 3
	RPCGarbageArgs  = 4
	RPCSystemErr    = 5
)

// RPC Reject Status
const (
	RPCMismatch = 0
	RPCAuthErr  = 1
)

// Authentication flavors
const (
	AuthNull  = 0
	AuthUnix  = 1
	AuthShort = 2
	AuthDES   = 3
)

// AUTH_UNIX limits from RFC 5531 Appendix A.
const (
	MaxMachineNameLen = 255
	MaxUnixGIDs       = 16
)

// Record marking (RFC 5531 Section 11). Bit 31 of the 4-byte header marks
// the last fragment; the low 31 bits are the fragment length.
const (
	LastFragmentFlag = 0x80000000
	FragmentSizeMask = 0x7FFFFFFF

	// MaxRecordSize bounds a reassembled record. READDIRPLUS replies are
	// capped by the dircount/maxcount we request, so this is generous.
	MaxRecordSize = 4 * 1024 * 1024
)

// ProgramName returns a short name for the programs the client talks to.
func ProgramName(program uint32) string {
	switch program {
	case ProgramPortmap:
		return "PORTMAP"
	case ProgramNFS:
		return "NFS"
	case ProgramMount:
		return "MOUNT"
	}
	return "UNKNOWN"
}
