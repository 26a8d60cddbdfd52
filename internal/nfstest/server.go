package nfstest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

// Server answers portmap, MOUNT and NFS calls for an FS.
type Server struct {
	fs       *FS
	listener net.Listener

	pageSize   int
	replyDelay time.Duration
	exports    []string

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	calls    map[string]int
	lastAuth *rpc.UnixAuth
	mounts   map[string]int

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize limits READDIRPLUS replies to n entries so clients must
// follow cookies.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithReplyDelay delays every NFS reply.
func WithReplyDelay(d time.Duration) Option {
	return func(s *Server) { s.replyDelay = d }
}

// WithExports restricts MNT to the given paths. By default every
// directory of the FS can be mounted.
func WithExports(paths ...string) Option {
	return func(s *Server) { s.exports = paths }
}

// New creates a server for fs. Call Serve to accept connections.
func New(fs *FS, opts ...Option) *Server {
	s := &Server{
		fs:     fs,
		conns:  make(map[net.Conn]struct{}),
		calls:  make(map[string]int),
		mounts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on a loopback port, serves in the background and stops
// the server when the test ends.
func Start(t testing.TB, fs *FS, opts ...Option) *Server {
	t.Helper()

	s := New(fs, opts...)
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("nfstest: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = s.Stop()
		<-done
	})
	return s
}

// Listen binds the listener.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	s.listener = listener
	logger.Debug("nfstest server listening on %s", listener.Addr())
	return nil
}

// Serve accepts connections until ctx is done or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("nfstest: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		tcpConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			logger.Debug("Error accepting connection: %v", err)
			continue
		}

		s.mu.Lock()
		s.conns[tcpConn] = struct{}{}
		s.mu.Unlock()

		c := &conn{server: s, conn: tcpConn}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(ctx)
		}()
	}
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.CloseConnections()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// CloseConnections drops every client connection, as a crashing server
// would.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

// Port returns the listening port. It serves portmap as well.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns an nfs:// URL for export with the server ports pinned, so
// no portmap query is needed.
func (s *Server) URL(export string) string {
	port := strconv.Itoa(s.Port())
	return "nfs://127.0.0.1" + export + "?mountport=" + port + "&nfsport=" + port
}

// Calls returns how many times a procedure was called. Names look like
// "NFS.LOOKUP", "MOUNT.MNT" or "PORTMAP.GETPORT".
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Mounts returns the number of active mounts of export.
func (s *Server) Mounts(export string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounts[export]
}

// LastAuth returns the most recent AUTH_UNIX credential seen.
func (s *Server) LastAuth() *rpc.UnixAuth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func (s *Server) count(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *Server) forget(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
