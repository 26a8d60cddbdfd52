package nfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	nfsxdr "github.com/marmos91/nfsusage/internal/protocol/nfs/xdr"
)

func dirAttr(fileid uint64) *types.NFSFileAttr {
	return &types.NFSFileAttr{
		Type:   types.NF3DIR,
		Mode:   0755,
		Nlink:  2,
		Size:   4096,
		Used:   4096,
		Fsid:   7,
		Fileid: fileid,
		Mtime:  types.TimeVal{Seconds: 1700000000, Nseconds: 5},
	}
}

func TestLookupCodec(t *testing.T) {
	t.Run("RequestRoundTrip", func(t *testing.T) {
		req := &LookupRequest{DirHandle: nfsxdr.HandleFromFileID(1), Filename: "héllo"}
		data, err := req.Encode()
		require.NoError(t, err)
		assert.Zero(t, len(data)%4)

		got, err := DecodeLookupRequest(data)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	})

	t.Run("RequestRejectsEmptyHandle", func(t *testing.T) {
		_, err := (&LookupRequest{Filename: "x"}).Encode()
		assert.Error(t, err)
	})

	t.Run("SuccessRoundTrip", func(t *testing.T) {
		resp := &LookupResponse{
			Status:     types.NFS3OK,
			FileHandle: nfsxdr.HandleFromFileID(2),
			Attr:       dirAttr(2),
			DirAttr:    dirAttr(1),
		}
		data, err := resp.Encode()
		require.NoError(t, err)

		got, err := DecodeLookupResponse(data)
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	})

	t.Run("ErrorCarriesOnlyDirAttr", func(t *testing.T) {
		resp := &LookupResponse{Status: types.NFS3ErrNoEnt, DirAttr: dirAttr(1)}
		data, err := resp.Encode()
		require.NoError(t, err)
		assert.Len(t, data, 4+4+nfsxdr.FileAttrSize)

		got, err := DecodeLookupResponse(data)
		require.NoError(t, err)
		assert.Equal(t, uint32(types.NFS3ErrNoEnt), got.Status)
		assert.Nil(t, got.FileHandle)
	})

	t.Run("ErrorWithoutTrailingAttrIsTolerated", func(t *testing.T) {
		got, err := DecodeLookupResponse([]byte{0, 0, 0, 13})
		require.NoError(t, err)
		assert.Equal(t, uint32(types.NFS3ErrAcces), got.Status)
	})
}

func TestReadDirPlusCodec(t *testing.T) {
	t.Run("RequestRoundTrip", func(t *testing.T) {
		req := &ReadDirPlusRequest{
			DirHandle:  nfsxdr.HandleFromFileID(9),
			Cookie:     42,
			CookieVerf: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
			DirCount:   DefaultDirCount,
			MaxCount:   DefaultMaxCount,
		}
		data, err := req.Encode()
		require.NoError(t, err)

		got, err := DecodeReadDirPlusRequest(data)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	})

	t.Run("ResponseRoundTrip", func(t *testing.T) {
		resp := &ReadDirPlusResponse{
			Status:     types.NFS3OK,
			DirAttr:    dirAttr(1),
			CookieVerf: [8]byte{9},
			Entries: []types.DirEntryPlus{
				{Fileid: 1, Name: ".", Cookie: 1, Attr: dirAttr(1), Handle: nfsxdr.HandleFromFileID(1)},
				{Fileid: 3, Name: "file.txt", Cookie: 2},
				{Fileid: 4, Name: "sub", Cookie: 3, Attr: dirAttr(4), Handle: nfsxdr.HandleFromFileID(4)},
			},
			Eof: true,
		}
		data, err := resp.Encode()
		require.NoError(t, err)

		got, err := DecodeReadDirPlusResponse(data)
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	})

	t.Run("EmptyListing", func(t *testing.T) {
		resp := &ReadDirPlusResponse{Status: types.NFS3OK, Eof: false}
		data, err := resp.Encode()
		require.NoError(t, err)

		got, err := DecodeReadDirPlusResponse(data)
		require.NoError(t, err)
		assert.Empty(t, got.Entries)
		assert.False(t, got.Eof)
	})

	t.Run("ErrorHasNoBody", func(t *testing.T) {
		resp := &ReadDirPlusResponse{Status: types.NFS3ErrNotDir}
		data, err := resp.Encode()
		require.NoError(t, err)
		assert.Len(t, data, 8)

		got, err := DecodeReadDirPlusResponse(data)
		require.NoError(t, err)
		assert.Equal(t, uint32(types.NFS3ErrNotDir), got.Status)
	})

	t.Run("TruncatedEntryFails", func(t *testing.T) {
		resp := &ReadDirPlusResponse{
			Status:  types.NFS3OK,
			Entries: []types.DirEntryPlus{{Fileid: 3, Name: "file.txt", Cookie: 2}},
			Eof:     true,
		}
		data, err := resp.Encode()
		require.NoError(t, err)

		_, err = DecodeReadDirPlusResponse(data[:len(data)-12])
		assert.Error(t, err)
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, "NFS3ERR_NOENT", NFSStatusToString(types.NFS3ErrNoEnt))
	assert.Equal(t, "NFS4ERR_BADCHAR", NFSStatusToString(types.NFS4ErrBadChar))
	assert.Equal(t, "UNKNOWN_999", NFSStatusToString(999))
	assert.Equal(t, "READDIRPLUS", ProcName(NFSProcReadDirPlus))
	assert.Equal(t, "UNKNOWN", ProcName(99))
}
