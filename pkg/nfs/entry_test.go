package nfs

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/engine"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		parent, name, want string
	}{
		{"/", "a.txt", "/a.txt"},
		{"", "a.txt", "/a.txt"},
		{"/sub", "b", "/sub/b"},
		{"/sub/", "b", "/sub/b"},
		{"/données", "été.txt", "/données/été.txt"},
		{"/données/", "été.txt", "/données/été.txt"},
		{"/日本", "語", "/日本/語"},
		{"/emoji/🙂/", "🚀", "/emoji/🙂/🚀"},
	}
	for _, tt := range tests {
		got := joinPath(tt.parent, tt.name)
		assert.Equal(t, tt.want, got)

		// exactly one separator between the parent content and the name
		prefix := strings.TrimSuffix(tt.parent, "/")
		assert.Equal(t, prefix+"/"+tt.name, got)
	}
}

func TestEntryTypeFromWire(t *testing.T) {
	want := []EntryType{
		TypeUnknown, TypeRegular, TypeDirectory, TypeBlockDevice, TypeCharDevice,
		TypeSymlink, TypeSocket, TypeFifo, TypeAttributeDir, TypeNamedAttribute,
	}
	for code, typ := range want {
		assert.Equal(t, typ, entryTypeFromWire(uint32(code)))
	}
	assert.Equal(t, TypeUnknown, entryTypeFromWire(42))
	assert.Equal(t, "symlink", TypeSymlink.String())
}

func TestDirEntry(t *testing.T) {
	mtime := time.Unix(1700000000, 250000000)
	d := &engine.Dirent{
		Name:    "b.bin",
		Inode:   77,
		Type:    2,
		Mode:    unix.S_IFDIR | 0o2755,
		Size:    4096,
		UID:     1000,
		GID:     100,
		Nlink:   3,
		Dev:     42,
		Rdev:    0,
		Blksize: 4096,
		Blocks:  8,
		Atime:   mtime,
		Mtime:   mtime,
		Ctime:   mtime,
	}
	e := newDirEntry("/sub", d)

	t.Run("Accessors", func(t *testing.T) {
		assert.Equal(t, "b.bin", e.Name())
		assert.Equal(t, "/sub/b.bin", e.Path())
		assert.Equal(t, uint64(77), e.Inode())
		assert.Equal(t, TypeDirectory, e.Type())
		assert.True(t, e.IsDir())
		assert.False(t, e.IsFile())
		assert.False(t, e.IsSymlink())
		assert.Equal(t, uint32(unix.S_IFDIR|0o2755), e.Mode())
		assert.Equal(t, uint64(8), e.Blocks())
		assert.Equal(t, uint64(4096), e.Blksize())
		assert.Equal(t, uint64(42), e.Dev())
		assert.Equal(t, uint32(3), e.Nlink())
	})

	t.Run("FileMode", func(t *testing.T) {
		assert.Equal(t, fs.ModeDir|fs.ModeSetgid|0o755, e.FileMode())
	})

	t.Run("Times", func(t *testing.T) {
		assert.True(t, e.Mtime().Equal(mtime))
		assert.InDelta(t, 1700000000.25, e.MtimeSeconds(), 1e-6)
		assert.InDelta(t, e.AtimeSeconds(), e.CtimeSeconds(), 1e-9)
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, `<DirEntry "b.bin">`, e.String())
	})
}
