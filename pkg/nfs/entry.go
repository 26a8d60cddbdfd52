package nfs

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/marmos91/nfsusage/internal/engine"
	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
)

// EntryType is the type of a directory entry.
type EntryType int

const (
	TypeUnknown EntryType = iota
	TypeRegular
	TypeDirectory
	TypeBlockDevice
	TypeCharDevice
	TypeSymlink
	TypeSocket
	TypeFifo
	TypeAttributeDir
	TypeNamedAttribute
)

func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "dir"
	case TypeBlockDevice:
		return "block"
	case TypeCharDevice:
		return "char"
	case TypeSymlink:
		return "symlink"
	case TypeSocket:
		return "socket"
	case TypeFifo:
		return "fifo"
	case TypeAttributeDir:
		return "attrdir"
	case TypeNamedAttribute:
		return "namedattr"
	}
	return "unknown"
}

// entryTypeFromWire converts an ftype3/nfs_ftype4 code.
func entryTypeFromWire(code uint32) EntryType {
	switch code {
	case types.NF3REG:
		return TypeRegular
	case types.NF3DIR:
		return TypeDirectory
	case types.NF3BLK:
		return TypeBlockDevice
	case types.NF3CHR:
		return TypeCharDevice
	case types.NF3LNK:
		return TypeSymlink
	case types.NF3SOCK:
		return TypeSocket
	case types.NF3FIFO:
		return TypeFifo
	case types.NF4ATTRDIR:
		return TypeAttributeDir
	case types.NF4NAMEDATTR:
		return TypeNamedAttribute
	}
	return TypeUnknown
}

// DirEntry is one entry of a directory listing. It is a value: copying it
// is cheap and nothing about it changes after the scan that produced it.
type DirEntry struct {
	name    string
	path    string
	typ     EntryType
	inode   uint64
	mode    uint32
	size    uint64
	uid     uint32
	gid     uint32
	nlink   uint32
	dev     uint64
	rdev    uint64
	blksize uint64
	blocks  uint64
	atime   time.Time
	mtime   time.Time
	ctime   time.Time
}

func newDirEntry(parent string, d *engine.Dirent) DirEntry {
	return DirEntry{
		name:    d.Name,
		path:    joinPath(parent, d.Name),
		typ:     entryTypeFromWire(d.Type),
		inode:   d.Inode,
		mode:    d.Mode,
		size:    d.Size,
		uid:     d.UID,
		gid:     d.GID,
		nlink:   d.Nlink,
		dev:     d.Dev,
		rdev:    d.Rdev,
		blksize: d.Blksize,
		blocks:  d.Blocks,
		atime:   d.Atime,
		mtime:   d.Mtime,
		ctime:   d.Ctime,
	}
}

// joinPath appends name to parent with exactly one "/" between them.
func joinPath(parent, name string) string {
	if strings.HasSuffix(parent, "/") {
		return parent + name
	}
	return parent + "/" + name
}

func (e DirEntry) Name() string    { return e.name }
func (e DirEntry) Path() string    { return e.path }
func (e DirEntry) Type() EntryType { return e.typ }
func (e DirEntry) Inode() uint64   { return e.inode }
func (e DirEntry) Size() uint64    { return e.size }
func (e DirEntry) UID() uint32     { return e.uid }
func (e DirEntry) GID() uint32     { return e.gid }
func (e DirEntry) Nlink() uint32   { return e.nlink }
func (e DirEntry) Dev() uint64     { return e.dev }
func (e DirEntry) Rdev() uint64    { return e.rdev }
func (e DirEntry) Blksize() uint64 { return e.blksize }

// Blocks is the number of 512 byte blocks allocated on the server.
func (e DirEntry) Blocks() uint64 { return e.blocks }

// Mode returns the POSIX mode, S_IF* type bits included.
func (e DirEntry) Mode() uint32 { return e.mode }

// FileMode returns the mode in io/fs form.
func (e DirEntry) FileMode() fs.FileMode {
	m := fs.FileMode(e.mode & 0o777)
	if e.mode&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if e.mode&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if e.mode&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	switch e.typ {
	case TypeDirectory, TypeAttributeDir:
		m |= fs.ModeDir
	case TypeSymlink:
		m |= fs.ModeSymlink
	case TypeBlockDevice:
		m |= fs.ModeDevice
	case TypeCharDevice:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case TypeSocket:
		m |= fs.ModeSocket
	case TypeFifo:
		m |= fs.ModeNamedPipe
	case TypeUnknown:
		m |= fs.ModeIrregular
	}
	return m
}

func (e DirEntry) Atime() time.Time { return e.atime }
func (e DirEntry) Mtime() time.Time { return e.mtime }
func (e DirEntry) Ctime() time.Time { return e.ctime }

// AtimeSeconds returns the access time as fractional seconds since the
// epoch. MtimeSeconds and CtimeSeconds do the same for their times.
func (e DirEntry) AtimeSeconds() float64 { return seconds(e.atime) }
func (e DirEntry) MtimeSeconds() float64 { return seconds(e.mtime) }
func (e DirEntry) CtimeSeconds() float64 { return seconds(e.ctime) }

func seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func (e DirEntry) IsDir() bool     { return e.typ == TypeDirectory }
func (e DirEntry) IsFile() bool    { return e.typ == TypeRegular }
func (e DirEntry) IsSymlink() bool { return e.typ == TypeSymlink }

func (e DirEntry) String() string {
	return fmt.Sprintf("<DirEntry %q>", e.name)
}
