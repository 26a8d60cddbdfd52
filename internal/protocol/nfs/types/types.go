package types

// ============================================================================
// NFSv3 Status Codes (RFC 1813 Section 2.6, nfsstat3)
// ============================================================================

const (
	NFS3OK             = 0
	NFS3ErrPerm        = 1
	NFS3ErrNoEnt       = 2
	NFS3ErrIO          = 5
	NFS3ErrNXIO        = 6
	NFS3ErrAcces       = 13
	NFS3ErrExist       = 17
	NFS3ErrXDev        = 18
	NFS3ErrNoDev       = 19
	NFS3ErrNotDir      = 20
	NFS3ErrIsDir       = 21
	NFS3ErrInval       = 22
	NFS3ErrFBig        = 27
	NFS3ErrNoSpc       = 28
	NFS3ErrRofs        = 30
	NFS3ErrMLink       = 31
	NFS3ErrNameTooLong = 63
	NFS3ErrNotEmpty    = 66
	NFS3ErrDQuot       = 69
	NFS3ErrStale       = 70
	NFS3ErrRemote      = 71
	NFS3ErrBadHandle   = 10001
	NFS3ErrNotSync     = 10002
	NFS3ErrBadCookie   = 10003
	NFS3ErrNotSupp     = 10004
	NFS3ErrTooSmall    = 10005
	NFS3ErrServerFault = 10006
	NFS3ErrBadType     = 10007
	NFS3ErrJukebox     = 10008

	// NFS4ErrBadChar shares the numeric space with nfsstat3. NFSv4 servers
	// and some v3 gateways return it for names with invalid characters.
	NFS4ErrBadChar = 10040
)

// ============================================================================
// File Types (ftype3, extended with the NFSv4 attribute directory types)
// ============================================================================

const (
	NF3REG  = 1
	NF3DIR  = 2
	NF3BLK  = 3
	NF3CHR  = 4
	NF3LNK  = 5
	NF3SOCK = 6
	NF3FIFO = 7

	NF4ATTRDIR   = 8
	NF4NAMEDATTR = 9
)

// FHSize3 is the maximum size of an NFSv3 file handle (NFS3_FHSIZE).
const FHSize3 = 64

// CookieVerfSize is the size of cookieverf3.
const CookieVerfSize = 8

// ============================================================================
// Attribute Structures
// ============================================================================

// TimeVal is nfstime3: seconds and nanoseconds since the Unix epoch.
type TimeVal struct {
	Seconds  uint32
	Nseconds uint32
}

// SpecData is specdata3: major/minor numbers of a device special file.
type SpecData struct {
	Major uint32
	Minor uint32
}

// NFSFileAttr is fattr3 (RFC 1813 Section 2.3.1).
type NFSFileAttr struct {
	Type   uint32   // File type (NF3REG, NF3DIR, etc.)
	Mode   uint32   // Unix permission bits
	Nlink  uint32   // Number of hard links
	UID    uint32   // Owner user ID
	GID    uint32   // Owner group ID
	Size   uint64   // File size in bytes
	Used   uint64   // Disk space used in bytes
	Rdev   SpecData // Device number for special files
	Fsid   uint64   // Filesystem identifier
	Fileid uint64   // File identifier (inode number)
	Atime  TimeVal  // Last access time
	Mtime  TimeVal  // Last modification time
	Ctime  TimeVal  // Last metadata change time
}

// DirEntryPlus is one entryplus3 of a READDIRPLUS reply. Attr and Handle
// are optional on the wire and may be nil.
type DirEntryPlus struct {
	Fileid uint64
	Name   string
	Cookie uint64
	Attr   *NFSFileAttr
	Handle []byte
}
