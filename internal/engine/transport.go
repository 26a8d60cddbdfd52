package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

// readChunk is the size of a single read(2) on the socket.
const readChunk = 64 * 1024

// replyFunc receives the procedure results of a reply, or the failure of
// the call. It runs inside service, on the caller's goroutine.
type replyFunc func(body []byte, err *StatusError)

type call struct {
	xid       uint32
	program   uint32
	procedure uint32
	started   time.Time
	deadline  time.Time
	done      replyFunc
}

// conn is one non-blocking TCP connection carrying ONC RPC records.
//
// Outgoing calls are appended to out and written when the socket is
// writable. Replies are reassembled by a RecordReader and matched to their
// call by XID. Nothing here blocks and nothing starts a goroutine.
type conn struct {
	fd         int
	addr       string
	connecting bool

	out     []byte
	records rpc.RecordReader
	pending map[uint32]*call
	readBuf []byte

	// failed is sticky: once set every later operation returns it.
	failed *StatusError

	observe Observer
}

// dial resolves host and starts a non-blocking connect to host:port.
func dial(ctx context.Context, host string, port int) (*conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(ips) == 0 {
		return nil, errnoError(unix.EHOSTUNREACH, "failed to resolve %s: %v", host, err)
	}
	ip := ips[0].IP
	for _, candidate := range ips {
		if candidate.IP.To4() != nil {
			ip = candidate.IP
			break
		}
	}

	var (
		domain int
		sa     unix.Sockaddr
	)
	if ip4 := ip.To4(); ip4 != nil {
		in4 := &unix.SockaddrInet4{Port: port}
		copy(in4.Addr[:], ip4)
		domain, sa = unix.AF_INET, in4
	} else {
		in6 := &unix.SockaddrInet6{Port: port}
		copy(in6.Addr[:], ip.To16())
		domain, sa = unix.AF_INET6, in6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, asStatusError(err, "socket")
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, asStatusError(err, "set non-blocking")
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	c := &conn{
		fd:      fd,
		addr:    addr,
		pending: make(map[uint32]*call),
		readBuf: make([]byte, readChunk),
	}

	switch err := unix.Connect(fd, sa); {
	case err == nil:
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR):
		c.connecting = true
	default:
		_ = unix.Close(fd)
		return nil, asStatusError(err, "connect to "+addr)
	}

	logger.Debug("connecting to %s (fd=%d)", addr, fd)
	return c, nil
}

// whichEvents returns the poll interest of the connection.
func (c *conn) whichEvents() int16 {
	if c.failed != nil {
		return 0
	}
	events := int16(unix.POLLIN)
	if c.connecting || len(c.out) > 0 {
		events |= unix.POLLOUT
	}
	return events
}

// queue registers a call and appends its record to the output queue.
// It tries to write immediately so that a blocking caller does not need a
// second poll round for small requests.
func (c *conn) queue(cl *call, record []byte) error {
	if c.failed != nil {
		return c.failed
	}
	if _, dup := c.pending[cl.xid]; dup {
		return errnoError(unix.EEXIST, "xid %d already in flight", cl.xid)
	}
	c.pending[cl.xid] = cl
	c.out = append(c.out, record...)
	if !c.connecting {
		if err := c.flush(); err != nil {
			// The caller learns about this call from the returned error,
			// so its callback must not run as well.
			delete(c.pending, cl.xid)
			return c.fail(err)
		}
	}
	return nil
}

func (c *conn) flush() *StatusError {
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return nil
			}
			return asStatusError(err, "write to "+c.addr)
		}
		c.out = c.out[n:]
	}
	c.out = nil
	return nil
}

// service processes observed poll events. Calls whose replies arrived
// complete synchronously before it returns. A returned error is fatal for
// the connection and has already failed every pending call.
func (c *conn) service(revents int16) error {
	if c.failed != nil {
		return c.failed
	}

	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return c.fail(c.socketError("socket error on " + c.addr))
	}

	if c.connecting && revents&(unix.POLLOUT|unix.POLLHUP) != 0 {
		if err := c.connectError(); err != nil {
			return c.fail(err)
		}
		c.connecting = false
		logger.Debug("connected to %s", c.addr)
	}

	if revents&(unix.POLLIN|unix.POLLHUP) != 0 {
		eof, err := c.readAvailable()
		if err != nil {
			return c.fail(err)
		}
		if err := c.dispatch(); err != nil {
			return c.fail(err)
		}
		if eof {
			return c.fail(errnoError(unix.ECONNRESET, "connection to %s closed by server", c.addr))
		}
	}

	if revents&unix.POLLOUT != 0 && !c.connecting {
		if err := c.flush(); err != nil {
			return c.fail(err)
		}
	}

	c.expire(time.Now())

	// A completion may have queued a follow-up call whose write failed.
	if c.failed != nil {
		return c.failed
	}
	return nil
}

func (c *conn) connectError() *StatusError {
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return asStatusError(err, "connect to "+c.addr)
	}
	if soerr != 0 {
		errno := unix.Errno(soerr)
		return errnoError(errno, "connect to %s: %v", c.addr, errno)
	}
	return nil
}

func (c *conn) socketError(context string) *StatusError {
	if err := c.connectError(); err != nil {
		return err
	}
	return errnoError(unix.EIO, "%s", context)
}

// readAvailable reads until the socket would block. eof reports an
// orderly shutdown by the peer.
func (c *conn) readAvailable() (eof bool, err *StatusError) {
	for {
		n, rerr := unix.Read(c.fd, c.readBuf)
		switch {
		case rerr != nil:
			if errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EINTR) {
				return false, nil
			}
			return false, asStatusError(rerr, "read from "+c.addr)
		case n == 0:
			return true, nil
		}
		c.records.Feed(c.readBuf[:n])
		if n < len(c.readBuf) {
			return false, nil
		}
	}
}

// dispatch completes every call whose reply record is buffered.
func (c *conn) dispatch() *StatusError {
	for {
		record, ok, err := c.records.Next()
		if err != nil {
			return errnoError(unix.EIO, "malformed record from %s: %v", c.addr, err)
		}
		if !ok {
			return nil
		}

		xid, err := rpc.PeekXID(record)
		if err != nil {
			return errnoError(unix.EIO, "%v", err)
		}
		cl, found := c.pending[xid]
		if !found {
			// Late reply of a call that timed out or was cancelled.
			logger.Debug("dropping reply with unknown xid %d from %s", xid, c.addr)
			continue
		}
		reply, err := rpc.DecodeReply(record)
		if err != nil {
			// cl stays pending so that failing the connection completes it.
			return errnoError(unix.EIO, "bad reply from %s: %v", c.addr, err)
		}
		delete(c.pending, xid)
		if err := reply.Err(); err != nil {
			c.complete(cl, nil, errnoError(rpcErrno(reply), "%v", err))
			continue
		}
		c.complete(cl, reply.Body, nil)
	}
}

func rpcErrno(reply *rpc.Reply) unix.Errno {
	if reply.ReplyState == rpc.RPCMsgDenied {
		return unix.EACCES
	}
	switch reply.AcceptStat {
	case rpc.RPCProgUnavail, rpc.RPCProgMismatch, rpc.RPCProcUnavail:
		return unix.EPROTONOSUPPORT
	}
	return unix.EIO
}

func (c *conn) complete(cl *call, body []byte, err *StatusError) {
	if c.observe != nil {
		var observed error
		if err != nil {
			observed = err
		}
		c.observe(cl.program, cl.procedure, time.Since(cl.started), observed)
	}
	cl.done(body, err)
}

// expire fails calls whose deadline has passed.
func (c *conn) expire(now time.Time) {
	for xid, cl := range c.pending {
		if cl.deadline.IsZero() || now.Before(cl.deadline) {
			continue
		}
		delete(c.pending, xid)
		c.complete(cl, nil, errnoError(unix.ETIMEDOUT,
			"request to %s timed out after %s", c.addr, now.Sub(cl.started).Round(time.Millisecond)))
	}
}

// cancel forgets a call without running its callback.
func (c *conn) cancel(xid uint32) {
	delete(c.pending, xid)
}

// fail marks the connection unusable and fails all pending calls.
func (c *conn) fail(err *StatusError) error {
	if c.failed != nil {
		return c.failed
	}
	c.failed = err
	c.out = nil
	c.records.Reset()

	pending := c.pending
	c.pending = make(map[uint32]*call)
	for _, cl := range pending {
		c.complete(cl, nil, err)
	}
	logger.Debug("connection to %s failed: %s", c.addr, err.Message)
	return err
}

// close releases the socket, failing pending calls with ECANCELED.
func (c *conn) close() {
	if c.fd < 0 {
		return
	}
	_ = c.fail(errnoError(unix.ECANCELED, "connection to %s closed", c.addr))
	_ = unix.Close(c.fd)
	c.fd = -1
}

// wait drives the connection with poll(2) until done reports true, the
// timeout elapses or ctx is cancelled. It is the loop behind every
// blocking operation.
func (c *conn) wait(ctx context.Context, timeout time.Duration, done func() bool) error {
	const slice = 100 * time.Millisecond

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for !done() {
		if c.failed != nil {
			return c.failed
		}
		if err := ctx.Err(); err != nil {
			errno := unix.ECANCELED
			if errors.Is(err, context.DeadlineExceeded) {
				errno = unix.ETIMEDOUT
			}
			return errnoError(errno, "waiting for %s: %v", c.addr, err)
		}

		wait := slice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errnoError(unix.ETIMEDOUT, "timed out after %s waiting for %s", timeout, c.addr)
			}
			wait = min(wait, remaining)
		}

		fds := []unix.PollFd{{Fd: int32(c.fd), Events: c.whichEvents()}}
		n, err := unix.Poll(fds, int(wait/time.Millisecond)+1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return c.fail(asStatusError(err, "poll"))
		}
		revents := int16(0)
		if n > 0 {
			revents = fds[0].Revents
		}
		if err := c.service(revents); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) String() string {
	return fmt.Sprintf("conn(%s fd=%d pending=%d)", c.addr, c.fd, len(c.pending))
}
