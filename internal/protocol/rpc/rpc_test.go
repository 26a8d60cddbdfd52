package rpc

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func validAuthUnixCredentials() *UnixAuth {
	return &UnixAuth{
		Stamp:       uint32(time.Now().Unix()),
		MachineName: "testhost",
		UID:         1000,
		GID:         1000,
		GIDs:        []uint32{4, 24, 27, 30},
	}
}

func stripRecordMark(t *testing.T, msg []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(msg), 4)
	header := binary.BigEndian.Uint32(msg[:4])
	require.NotZero(t, header&LastFragmentFlag, "single fragment must be marked last")
	require.Equal(t, len(msg)-4, int(header&FragmentSizeMask))
	return msg[4:]
}

// ============================================================================
// AUTH_UNIX Tests
// ============================================================================

func TestUnixCredential(t *testing.T) {
	t.Run("RoundTrips", func(t *testing.T) {
		original := validAuthUnixCredentials()
		cred, err := NewUnixCredential(original)
		require.NoError(t, err)
		assert.Equal(t, uint32(AuthUnix), cred.Flavor)

		parsed, err := ParseUnixAuth(cred.Body)
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	})

	t.Run("RejectsExcessiveGroups", func(t *testing.T) {
		auth := validAuthUnixCredentials()
		auth.GIDs = make([]uint32, 17)
		_, err := NewUnixCredential(auth)
		assert.ErrorContains(t, err, "too many gids")
	})

	t.Run("ParseRejectsLongMachineName", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(12345))
		_ = binary.Write(buf, binary.BigEndian, uint32(256))

		_, err := ParseUnixAuth(buf.Bytes())
		assert.ErrorContains(t, err, "machine name too long")
	})

	t.Run("ParseRejectsEmptyBody", func(t *testing.T) {
		_, err := ParseUnixAuth([]byte{})
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("StringMentionsIdentity", func(t *testing.T) {
		str := validAuthUnixCredentials().String()
		assert.Contains(t, str, "testhost")
		assert.Contains(t, str, "[4 24 27 30]")
	})
}

// ============================================================================
// CALL / REPLY Tests
// ============================================================================

func TestEncodeCall(t *testing.T) {
	cred, err := NewUnixCredential(validAuthUnixCredentials())
	require.NoError(t, err)

	args := []byte{0, 0, 0, 1, 0xaa, 0xbb, 0xcc, 0xdd}
	msg, err := EncodeCall(0x1234, ProgramNFS, NFSVersion3, 16, cred, args)
	require.NoError(t, err)

	record := stripRecordMark(t, msg)
	call, err := ReadCall(record)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), call.XID)
	assert.Equal(t, uint32(RPCVersion), call.RPCVersion)
	assert.Equal(t, uint32(ProgramNFS), call.Program)
	assert.Equal(t, uint32(NFSVersion3), call.Version)
	assert.Equal(t, uint32(16), call.Procedure)
	assert.Equal(t, uint32(AuthUnix), call.GetAuthFlavor())
	assert.Equal(t, cred.Body, call.GetAuthBody())

	data, err := ReadData(record, call)
	require.NoError(t, err)
	assert.Equal(t, args, data)
}

func TestDecodeReply(t *testing.T) {
	t.Run("AcceptedSuccess", func(t *testing.T) {
		msg, err := MakeSuccessReply(7, []byte{0, 0, 0, 0, 1, 2, 3, 4})
		require.NoError(t, err)

		reply, err := DecodeReply(stripRecordMark(t, msg))
		require.NoError(t, err)
		assert.Equal(t, uint32(7), reply.XID)
		assert.NoError(t, reply.Err())
		assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, reply.Body)
	})

	t.Run("AcceptedProcUnavail", func(t *testing.T) {
		msg, err := MakeErrorReply(8, RPCProcUnavail)
		require.NoError(t, err)

		reply, err := DecodeReply(stripRecordMark(t, msg))
		require.NoError(t, err)
		var replyErr *ReplyError
		require.ErrorAs(t, reply.Err(), &replyErr)
		assert.Equal(t, uint32(RPCProcUnavail), replyErr.Stat)
		assert.Contains(t, replyErr.Error(), "procedure unavailable")
	})

	t.Run("ProgramMismatchCarriesRange", func(t *testing.T) {
		buf := new(bytes.Buffer)
		for _, v := range []uint32{9, RPCReply, RPCMsgAccepted, AuthNull, 0, RPCProgMismatch, 2, 3} {
			_ = binary.Write(buf, binary.BigEndian, v)
		}

		reply, err := DecodeReply(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, uint32(2), reply.Low)
		assert.Equal(t, uint32(3), reply.High)
		assert.ErrorContains(t, reply.Err(), "server supports 2-3")
	})

	t.Run("DeniedAuthError", func(t *testing.T) {
		buf := new(bytes.Buffer)
		for _, v := range []uint32{10, RPCReply, RPCMsgDenied, RPCAuthErr, 1} {
			_ = binary.Write(buf, binary.BigEndian, v)
		}

		reply, err := DecodeReply(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, uint32(1), reply.AuthStat)
		assert.ErrorContains(t, reply.Err(), "authentication error")
	})

	t.Run("RejectsCall", func(t *testing.T) {
		msg, err := EncodeCall(1, ProgramMount, MountVersion, 0, NullAuth(), nil)
		require.NoError(t, err)
		_, err = DecodeReply(msg[4:])
		assert.ErrorContains(t, err, "expected REPLY")
	})

	t.Run("RejectsTruncated", func(t *testing.T) {
		_, err := DecodeReply([]byte{0, 0, 0, 1, 0, 0})
		assert.Error(t, err)
	})
}

func TestPeekXID(t *testing.T) {
	xid, err := PeekXID([]byte{0, 0, 1, 2, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0102), xid)

	_, err = PeekXID([]byte{1})
	assert.Error(t, err)
}

// ============================================================================
// RecordReader Tests
// ============================================================================

func TestRecordReader(t *testing.T) {
	t.Run("ByteAtATime", func(t *testing.T) {
		msg, err := MakeSuccessReply(1, []byte("abcd"))
		require.NoError(t, err)

		var rr RecordReader
		for i, b := range msg {
			rr.Feed([]byte{b})
			record, ok, err := rr.Next()
			require.NoError(t, err)
			if i < len(msg)-1 {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)
			assert.Equal(t, msg[4:], record)
		}
	})

	t.Run("MultipleFragments", func(t *testing.T) {
		stream := []byte{0, 0, 0, 2, 'a', 'b', 0x80, 0, 0, 3, 'c', 'd', 'e'}
		var rr RecordReader
		rr.Feed(stream)

		record, ok, err := rr.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("abcde"), record)
		assert.Zero(t, rr.Buffered())
	})

	t.Run("TwoRecordsInOneRead", func(t *testing.T) {
		first, _ := MakeSuccessReply(1, nil)
		second, _ := MakeSuccessReply(2, nil)

		var rr RecordReader
		rr.Feed(append(append([]byte{}, first...), second...))

		for _, want := range []uint32{1, 2} {
			record, ok, err := rr.Next()
			require.NoError(t, err)
			require.True(t, ok)
			xid, _ := PeekXID(record)
			assert.Equal(t, want, xid)
		}

		_, ok, err := rr.Next()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RejectsOversizedRecord", func(t *testing.T) {
		var rr RecordReader
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, LastFragmentFlag|uint32(MaxRecordSize+1))
		rr.Feed(header)

		_, _, err := rr.Next()
		assert.Error(t, err)
	})
}

func TestAuthFlavors(t *testing.T) {
	flavors := []uint32{AuthNull, AuthUnix, AuthShort, AuthDES}
	seen := make(map[uint32]bool)
	for _, flavor := range flavors {
		assert.False(t, seen[flavor], "flavor %d is not unique", flavor)
		seen[flavor] = true
	}
	assert.Equal(t, uint32(1), uint32(AuthUnix))
}
