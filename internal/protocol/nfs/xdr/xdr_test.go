package xdr

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func validFileAttr() *types.NFSFileAttr {
	now := TimeToTimeVal(time.Unix(1700000000, 123456789))
	return &types.NFSFileAttr{
		Type:   types.NF3REG,
		Mode:   0644,
		Nlink:  1,
		UID:    1000,
		GID:    1000,
		Size:   1024,
		Used:   4096,
		Rdev:   types.SpecData{Major: 0, Minor: 0},
		Fsid:   1,
		Fileid: 12345,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
	}
}

func validDirAttr() *types.NFSFileAttr {
	attr := validFileAttr()
	attr.Type = types.NF3DIR
	attr.Mode = 0755
	attr.Nlink = 2
	attr.Fileid = 54321
	return attr
}

// ============================================================================
// EncodeOptionalOpaque Tests
// ============================================================================

func TestEncodeOptionalOpaque(t *testing.T) {
	t.Run("EncodesNilAsNotPresent", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeOptionalOpaque(buf, nil))
		assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())
	})

	t.Run("EncodesWithProperPadding", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeOptionalOpaque(buf, []byte{0x01, 0x02, 0x03}))

		expected := []byte{
			0, 0, 0, 1, // present flag
			0, 0, 0, 3, // length
			0x01, 0x02, 0x03, 0, // data + 1 byte padding
		}
		assert.Equal(t, expected, buf.Bytes())
	})

	t.Run("DecodesBack", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeOptionalOpaque(buf, []byte("handle")))

		handle, err := DecodeOptionalFileHandle(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte("handle"), handle)
		assert.Zero(t, buf.Len())
	})
}

// ============================================================================
// File Attribute Tests
// ============================================================================

func TestFileAttr(t *testing.T) {
	t.Run("EncodesFixedSize", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeFileAttr(buf, validFileAttr()))
		assert.Equal(t, FileAttrSize, buf.Len())
		assert.Equal(t, uint32(types.NF3REG), binary.BigEndian.Uint32(buf.Bytes()[0:4]))
	})

	t.Run("RejectsNil", func(t *testing.T) {
		assert.Error(t, EncodeFileAttr(new(bytes.Buffer), nil))
	})

	t.Run("OptionalRoundTrip", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeOptionalFileAttr(buf, validDirAttr()))
		require.NoError(t, EncodeOptionalFileAttr(buf, nil))

		got, err := DecodeOptionalFileAttr(buf)
		require.NoError(t, err)
		assert.Equal(t, validDirAttr(), got)

		got, err = DecodeOptionalFileAttr(buf)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("TruncatedFails", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeFileAttr(buf, validFileAttr()))
		_, err := DecodeFileAttr(bytes.NewReader(buf.Bytes()[:40]))
		assert.Error(t, err)
	})
}

func TestDecodeFileHandle(t *testing.T) {
	t.Run("RejectsOversized", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, binary.Write(buf, binary.BigEndian, uint32(types.FHSize3+1)))
		buf.Write(make([]byte, types.FHSize3+4))
		_, err := DecodeFileHandle(buf)
		assert.Error(t, err)
	})

	t.Run("AbsentHandleIsNil", func(t *testing.T) {
		handle, err := DecodeOptionalFileHandle(bytes.NewReader([]byte{0, 0, 0, 0}))
		require.NoError(t, err)
		assert.Nil(t, handle)
	})
}

func TestFileIDHandles(t *testing.T) {
	handle := HandleFromFileID(0xdeadbeef)
	require.NoError(t, ValidateHandle(handle))
	assert.Equal(t, uint64(0xdeadbeef), ExtractFileID(handle))
	assert.Zero(t, ExtractFileID([]byte{1, 2}))

	assert.Error(t, ValidateHandle(nil))
	assert.Error(t, ValidateHandle(make([]byte, types.FHSize3+1)))
}

func TestPosixMode(t *testing.T) {
	tests := []struct {
		ftype uint32
		want  uint32
	}{
		{types.NF3REG, unix.S_IFREG | 0644},
		{types.NF3DIR, unix.S_IFDIR | 0644},
		{types.NF3LNK, unix.S_IFLNK | 0644},
		{types.NF3FIFO, unix.S_IFIFO | 0644},
		{99, 0644},
	}
	for _, tt := range tests {
		attr := validFileAttr()
		attr.Type = tt.ftype
		assert.Equal(t, tt.want, PosixMode(attr), "ftype %d", tt.ftype)
	}

	assert.Equal(t, uint64(0), Blocks(0))
	assert.Equal(t, uint64(1), Blocks(1))
	assert.Equal(t, uint64(8), Blocks(4096))
	assert.Equal(t, unix.Mkdev(8, 1), Rdev(types.SpecData{Major: 8, Minor: 1}))
}

func TestTimeConversion(t *testing.T) {
	ts := time.Unix(1700000000, 42)
	assert.True(t, ts.Equal(TimeValToTime(TimeToTimeVal(ts))))
}
