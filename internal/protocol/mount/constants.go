package mount

import "fmt"

// Mount Protocol Procedure Numbers (RFC 1813 Appendix I).
// The client only issues MNT and UMNT.
const (
	MountProcNull    = 0
	MountProcMnt     = 1
	MountProcDump    = 2
	MountProcUmnt    = 3
	MountProcUmntAll = 4
	MountProcExport  = 5
)

// Mount Status Codes (mountstat3).
const (
	// MountOK - Success
	MountOK = 0

	// MountErrPerm - Not owner
	MountErrPerm = 1

	// MountErrNoEnt - No such file or directory
	MountErrNoEnt = 2

	// MountErrIO - I/O error
	MountErrIO = 5

	// MountErrAccess - Permission denied
	MountErrAccess = 13

	// MountErrNotDir - Not a directory
	MountErrNotDir = 20

	// MountErrInval - Invalid argument
	MountErrInval = 22

	// MountErrNameTooLong - Filename too long
	MountErrNameTooLong = 63

	// MountErrNotSupp - Operation not supported
	MountErrNotSupp = 10004

	// MountErrServerFault - Server fault
	MountErrServerFault = 10006
)

// MaxPathLen is MNTPATHLEN, the longest dirpath a MNT call may carry.
const MaxPathLen = 1024

// StatusToString returns the mountstat3 name of status.
func StatusToString(status uint32) string {
	switch status {
	case MountOK:
		return "MNT3_OK"
	case MountErrPerm:
		return "MNT3ERR_PERM"
	case MountErrNoEnt:
		return "MNT3ERR_NOENT"
	case MountErrIO:
		return "MNT3ERR_IO"
	case MountErrAccess:
		return "MNT3ERR_ACCES"
	case MountErrNotDir:
		return "MNT3ERR_NOTDIR"
	case MountErrInval:
		return "MNT3ERR_INVAL"
	case MountErrNameTooLong:
		return "MNT3ERR_NAMETOOLONG"
	case MountErrNotSupp:
		return "MNT3ERR_NOTSUPP"
	case MountErrServerFault:
		return "MNT3ERR_SERVERFAULT"
	}
	return fmt.Sprintf("MNT3ERR_UNKNOWN_%d", status)
}

// ProcName returns the name of a MOUNT v3 procedure.
func ProcName(proc uint32) string {
	switch proc {
	case MountProcNull:
		return "NULL"
	case MountProcMnt:
		return "MNT"
	case MountProcDump:
		return "DUMP"
	case MountProcUmnt:
		return "UMNT"
	case MountProcUmntAll:
		return "UMNTALL"
	case MountProcExport:
		return "EXPORT"
	}
	return "UNKNOWN"
}
