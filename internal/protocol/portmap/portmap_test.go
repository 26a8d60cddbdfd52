package portmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

func TestMapping(t *testing.T) {
	m := &Mapping{Program: rpc.ProgramMount, Version: rpc.MountVersion, Protocol: ProtoTCP}
	data, err := m.Encode()
	require.NoError(t, err)
	assert.Len(t, data, 16)

	got, err := DecodeMapping(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestGetPortResponse(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		data, err := (&GetPortResponse{Port: 2049}).Encode()
		require.NoError(t, err)

		got, err := DecodeGetPortResponse(data)
		require.NoError(t, err)
		assert.Equal(t, uint32(2049), got.Port)
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		_, err := DecodeGetPortResponse([]byte{0, 1, 0, 0})
		assert.Error(t, err)
	})

	t.Run("RejectsShort", func(t *testing.T) {
		_, err := DecodeGetPortResponse([]byte{0, 1})
		assert.Error(t, err)
	})
}
