package nfs

// NFSv3 Procedure Numbers (RFC 1813)
//
// The client only issues NULL, LOOKUP and READDIRPLUS; the full table is
// kept so that logs and metrics can name any procedure a server reports.
const (
	NFSProcNull        = 0
	NFSProcGetAttr     = 1
	NFSProcSetAttr     = 2
	NFSProcLookup      = 3
	NFSProcAccess      = 4
	NFSProcReadLink    = 5
	NFSProcRead        = 6
	NFSProcWrite       = 7
	NFSProcCreate      = 8
	NFSProcMkdir       = 9
	NFSProcSymlink     = 10
	NFSProcMknod       = 11
	NFSProcRemove      = 12
	NFSProcRmdir       = 13
	NFSProcRename      = 14
	NFSProcLink        = 15
	NFSProcReadDir     = 16
	NFSProcReadDirPlus = 17
	NFSProcFsStat      = 18
	NFSProcFsInfo      = 19
	NFSProcPathConf    = 20
	NFSProcCommit      = 21
)

// READDIRPLUS sizing. DefaultDirCount/DefaultMaxCount match what the Linux
// client asks for; servers clamp them to their own limits.
const (
	DefaultDirCount = 8192
	DefaultMaxCount = 32768
)

var procNames = map[uint32]string{
	NFSProcNull:        "NULL",
	NFSProcGetAttr:     "GETATTR",
	NFSProcSetAttr:     "SETATTR",
	NFSProcLookup:      "LOOKUP",
	NFSProcAccess:      "ACCESS",
	NFSProcReadLink:    "READLINK",
	NFSProcRead:        "READ",
	NFSProcWrite:       "WRITE",
	NFSProcCreate:      "CREATE",
	NFSProcMkdir:       "MKDIR",
	NFSProcSymlink:     "SYMLINK",
	NFSProcMknod:       "MKNOD",
	NFSProcRemove:      "REMOVE",
	NFSProcRmdir:       "RMDIR",
	NFSProcRename:      "RENAME",
	NFSProcLink:        "LINK",
	NFSProcReadDir:     "READDIR",
	NFSProcReadDirPlus: "READDIRPLUS",
	NFSProcFsStat:      "FSSTAT",
	NFSProcFsInfo:      "FSINFO",
	NFSProcPathConf:    "PATHCONF",
	NFSProcCommit:      "COMMIT",
}

// ProcName returns the RFC name of an NFSv3 procedure.
func ProcName(proc uint32) string {
	if name, ok := procNames[proc]; ok {
		return name
	}
	return "UNKNOWN"
}
