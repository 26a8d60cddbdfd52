package nfsurl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("ServerAndExport", func(t *testing.T) {
		u, err := Parse("nfs://filer01/export/data")
		require.NoError(t, err)
		assert.Equal(t, "filer01", u.Server)
		assert.Equal(t, "/export/data", u.Export)
		assert.Zero(t, u.Port)
		assert.Zero(t, u.NFSPort())
	})

	t.Run("EmptyPathIsRoot", func(t *testing.T) {
		u, err := Parse("nfs://filer01")
		require.NoError(t, err)
		assert.Equal(t, "/", u.Export)
	})

	t.Run("PercentDecodesPath", func(t *testing.T) {
		u, err := Parse("nfs://filer01/exp%20ort/d%C3%A9j%C3%A0")
		require.NoError(t, err)
		assert.Equal(t, "/exp ort/déjà", u.Export)
	})

	t.Run("AuthorityPortIsNFSPort", func(t *testing.T) {
		u, err := Parse("nfs://user@[::1]:2049/x")
		require.NoError(t, err)
		assert.Equal(t, "::1", u.Server)
		assert.Equal(t, "user", u.User)
		assert.Equal(t, 2049, u.NFSPort())
	})

	t.Run("Options", func(t *testing.T) {
		u, err := Parse("NFS://h/x?uid=0&gid=100&version=3&mountport=635&nfsport=2050&timeo=1500&readdir_buffer=65536&sec=sys")
		require.NoError(t, err)
		require.NotNil(t, u.Options.UID)
		assert.Equal(t, uint32(0), *u.Options.UID)
		assert.Equal(t, uint32(100), *u.Options.GID)
		assert.Equal(t, 3, u.Options.Version)
		assert.Equal(t, 635, u.Options.MountPort)
		assert.Equal(t, 2050, u.NFSPort())
		assert.Equal(t, 1500*time.Millisecond, u.Timeout())
		assert.Equal(t, 65536, u.Options.ReaddirBuffer)
	})

	t.Run("LastValueWins", func(t *testing.T) {
		u, err := Parse("nfs://h/x?timeo=1&timeo=2")
		require.NoError(t, err)
		assert.Equal(t, 2, u.Options.Timeo)
	})
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"WrongScheme", "smb://h/x"},
		{"NoServer", "nfs:///x"},
		{"Opaque", "nfs:h/x"},
		{"ControlChar", "nfs://h/x\ny"},
		{"InvalidUTF8", "nfs://h/\xff"},
		{"UnknownKey", "nfs://h/x?colour=blue"},
		{"NotANumber", "nfs://h/x?uid=root"},
		{"PortOutOfRange", "nfs://h/x?nfsport=70000"},
		{"BadVersion", "nfs://h/x?version=9"},
		{"BadSec", "nfs://h/x?sec=none"},
		{"BadAuthorityPort", "nfs://h:0/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidURL))
		})
	}
}

func TestString(t *testing.T) {
	u, err := Parse("nfs://filer01/export/my%20dir?timeo=100&uid=5")
	require.NoError(t, err)
	assert.Equal(t, "nfs://filer01/export/my%20dir?timeo=100&uid=5", u.String())

	again, err := Parse(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, again)
}
