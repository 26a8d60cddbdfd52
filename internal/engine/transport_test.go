package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/nfstest"
	"github.com/marmos91/nfsusage/internal/protocol/nfs"
	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

// ============================================================================
// Socket Pair Helpers
// ============================================================================

// pairedContext returns a mounted context whose NFS connection is one end
// of a socket pair. The test acts as the server on the returned fd.
func pairedContext(t *testing.T) (*Context, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	c, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Destroy() })

	c.nfs = &conn{
		fd:      fds[0],
		addr:    "socketpair",
		pending: make(map[uint32]*call),
		readBuf: make([]byte, readChunk),
	}
	c.root = []byte{0x01}
	c.mounted = true
	return c, fds[1]
}

func readFull(t *testing.T, fd, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	for off := 0; off < n; {
		m, err := unix.Read(fd, buf[off:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		require.NoError(t, err)
		require.NotZero(t, m, "connection closed")
		off += m
	}
	return buf
}

func writeAll(t *testing.T, fd int, data []byte) {
	t.Helper()
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		require.NoError(t, err)
		data = data[n:]
	}
}

// readCallXID consumes one call record and returns its xid.
func readCallXID(t *testing.T, fd int) uint32 {
	t.Helper()
	header := binary.BigEndian.Uint32(readFull(t, fd, 4))
	body := readFull(t, fd, int(header&^rpc.LastFragmentFlag))
	return binary.BigEndian.Uint32(body[:4])
}

// ============================================================================
// Connection Failure Tests
// ============================================================================

func TestServiceGarbledReply(t *testing.T) {
	c, peer := pairedContext(t)

	var comp Completion
	require.NoError(t, c.OpenDirAsync("/", &comp))
	xid := readCallXID(t, peer)

	// Right xid, but a CALL instead of a REPLY.
	garbled := make([]byte, 12)
	binary.BigEndian.PutUint32(garbled[0:], rpc.LastFragmentFlag|8)
	binary.BigEndian.PutUint32(garbled[4:], xid)
	binary.BigEndian.PutUint32(garbled[8:], rpc.RPCCall)
	writeAll(t, peer, garbled)

	err := c.Service(unix.POLLIN)
	require.Error(t, err)
	assert.Equal(t, -int32(unix.EIO), StatusOf(err))

	assert.True(t, comp.Done, "the open waiting on the reply fails with the connection")
	assert.Equal(t, -int32(unix.EIO), comp.Status)
	assert.Nil(t, comp.Dir)
	assert.Zero(t, c.QueueLength())
}

func TestServiceReportsFailureOfFollowUpCall(t *testing.T) {
	c, peer := pairedContext(t)

	var comp Completion
	require.NoError(t, c.OpenDirAsync("/a/b", &comp))
	xid := readCallXID(t, peer)

	// The server stops reading, so the LOOKUP of "b" queued while
	// completing the LOOKUP of "a" cannot be written.
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_RD))

	body, err := (&nfs.LookupResponse{Status: types.NFS3OK, FileHandle: []byte{0x02}}).Encode()
	require.NoError(t, err)
	reply, err := rpc.MakeSuccessReply(xid, body)
	require.NoError(t, err)
	writeAll(t, peer, reply)

	err = c.Service(unix.POLLIN)
	require.Error(t, err, "the failure surfaces in the same Service call")
	assert.Equal(t, -int32(unix.EPIPE), StatusOf(err))

	assert.True(t, comp.Done)
	assert.NotZero(t, comp.Status)
	assert.Zero(t, c.WhichEvents())
	assert.Equal(t, err, c.Service(unix.POLLIN), "the failure is sticky")
}

// ============================================================================
// Abandoned Blocking Open Tests
// ============================================================================

func TestOpenDirAbandonedCallIsForgotten(t *testing.T) {
	srv := nfstest.Start(t, sampleFS(), nfstest.WithReplyDelay(300*time.Millisecond))
	c := newMounted(t, srv, "/export", Config{})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.OpenDir(ctx, "/sub")
		assert.Equal(t, -int32(unix.ECANCELED), StatusOf(err))
		assert.Zero(t, c.QueueLength())
	})

	t.Run("Deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.OpenDir(ctx, "/")
		assert.Equal(t, -int32(unix.ETIMEDOUT), StatusOf(err))
		assert.Zero(t, c.QueueLength())
	})

	t.Run("LateRepliesAreDropped", func(t *testing.T) {
		dir, err := c.OpenDir(context.Background(), "/sub")
		require.NoError(t, err)
		assert.Equal(t, []string{".", "..", "deeper", "b.bin"}, names(dir))
		assert.Zero(t, c.QueueLength())
	})
}
