package xdr

import (
	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
)

// TypeModeBits returns the S_IF* bits for an ftype3 value. fattr3 carries
// only the permission bits in mode; clients OR these in to get a POSIX
// st_mode. Unknown types yield 0.
func TypeModeBits(ftype uint32) uint32 {
	switch ftype {
	case types.NF3REG:
		return unix.S_IFREG
	case types.NF3DIR, types.NF4ATTRDIR:
		return unix.S_IFDIR
	case types.NF3BLK:
		return unix.S_IFBLK
	case types.NF3CHR:
		return unix.S_IFCHR
	case types.NF3LNK:
		return unix.S_IFLNK
	case types.NF3SOCK:
		return unix.S_IFSOCK
	case types.NF3FIFO:
		return unix.S_IFIFO
	case types.NF4NAMEDATTR:
		return unix.S_IFREG
	}
	return 0
}

// PosixMode combines the type bits and the permission bits of attr.
func PosixMode(attr *types.NFSFileAttr) uint32 {
	return TypeModeBits(attr.Type) | (attr.Mode & 0o7777)
}

// Blocks returns the number of 512-byte blocks covering used bytes,
// rounded up.
func Blocks(used uint64) uint64 {
	return (used + 511) / 512
}

// Rdev packs specdata3 into a device number the way the local libc does.
func Rdev(spec types.SpecData) uint64 {
	return unix.Mkdev(spec.Major, spec.Minor)
}
