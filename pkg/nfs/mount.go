package nfs

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nfsusage/internal/engine"
	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/nfsurl"
	"github.com/marmos91/nfsusage/internal/protocol/mount"
	protonfs "github.com/marmos91/nfsusage/internal/protocol/nfs"
	"github.com/marmos91/nfsusage/internal/protocol/portmap"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
	"github.com/marmos91/nfsusage/pkg/metrics"
)

// DefaultTimeout bounds blocking operations when neither WithTimeout nor
// the URL timeo option is given.
const DefaultTimeout = engine.DefaultTimeout

// umountTimeout bounds the UMNT call issued by Close.
const umountTimeout = 5 * time.Second

// protocolEngine is the part of the client engine a Mount drives.
type protocolEngine interface {
	SetVersion(version int) error
	Mount(ctx context.Context, server, export string) error
	Umount(ctx context.Context) error
	Destroy() error

	OpenDir(ctx context.Context, dirPath string) (*engine.Dir, error)
	OpenDirAsync(dirPath string, comp *engine.Completion) error

	Fd() int
	WhichEvents() int16
	Service(revents int16) error
	QueueLength() int
	LastError() string
}

// newEngine is replaced in tests.
var newEngine = func(cfg engine.Config) (protocolEngine, error) {
	c, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Logger receives the diagnostics of a Mount. The package-level functions
// of the internal logger are used when none is given.
type Logger interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
}

type defaultLogger struct{}

func (defaultLogger) Debug(format string, args ...any) { logger.Debug(format, args...) }
func (defaultLogger) Warn(format string, args ...any)  { logger.Warn(format, args...) }

type options struct {
	log             Logger
	timeout         time.Duration
	portmapPort     int
	uid, gid        uint32
	machineName     string
	lookupCacheSize int
	metrics         metrics.CrawlMetrics
}

// Option configures Open.
type Option func(*options)

// WithLogger sets where the Mount reports diagnostics.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTimeout bounds every blocking operation. The URL option timeo takes
// precedence.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithPortmapPort changes the port GETPORT queries are sent to.
func WithPortmapPort(port int) Option {
	return func(o *options) { o.portmapPort = port }
}

// WithAuth sets the AUTH_UNIX credentials. The URL options uid and gid
// take precedence. An empty machine name means the local hostname.
func WithAuth(uid, gid uint32, machine string) Option {
	return func(o *options) {
		o.uid, o.gid, o.machineName = uid, gid, machine
	}
}

// WithLookupCacheSize sets how many path to file handle translations are
// cached.
func WithLookupCacheSize(n int) Option {
	return func(o *options) { o.lookupCacheSize = n }
}

// WithMetrics reports the latency of every RPC to m.
func WithMetrics(m metrics.CrawlMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// Mount is a mounted NFS export.
//
// A Mount and the scanners created from it must be used from one goroutine
// at a time. Run several Mounts to list directories in parallel.
type Mount struct {
	url    *nfsurl.URL
	raw    string
	eng    protocolEngine
	log    Logger
	closed bool
}

// Open parses rawURL and mounts the export it names. Nothing is returned
// but the error when mounting fails.
func Open(ctx context.Context, rawURL string, opts ...Option) (*Mount, error) {
	o := options{
		log:         defaultLogger{},
		timeout:     DefaultTimeout,
		portmapPort: rpc.PortmapPort,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := nfsurl.Parse(rawURL)
	if err != nil {
		return nil, &Error{
			Op:      "open",
			Path:    rawURL,
			Kind:    KindInvalidArgument,
			Message: err.Error(),
			Err:     err,
		}
	}
	if u.Options.Sec != "" && u.Options.Sec != "sys" {
		o.log.Warn("sec=%s requested for %s, using AUTH_UNIX", u.Options.Sec, u.Server)
	}

	cfg := engine.Config{
		Timeout:         o.timeout,
		PortmapPort:     o.portmapPort,
		MountPort:       u.Options.MountPort,
		NFSPort:         u.NFSPort(),
		UID:             o.uid,
		GID:             o.gid,
		MachineName:     o.machineName,
		LookupCacheSize: o.lookupCacheSize,
		ReaddirMaxCount: uint32(u.Options.ReaddirBuffer),
	}
	if t := u.Timeout(); t > 0 {
		cfg.Timeout = t
	}
	if u.Options.UID != nil {
		cfg.UID = *u.Options.UID
	}
	if u.Options.GID != nil {
		cfg.GID = *u.Options.GID
	}
	if o.metrics != nil {
		cfg.Observer = rpcObserver(o.metrics)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return nil, &Error{
			Op:      "open",
			Path:    rawURL,
			Kind:    KindRuntime,
			Message: fmt.Sprintf("failed to create NFS context: %v", err),
			Err:     err,
		}
	}

	version := rpc.NFSVersion3
	if u.Options.Version != 0 {
		version = u.Options.Version
	}
	if err := eng.SetVersion(version); err != nil {
		_ = eng.Destroy()
		e := fromEngine(ctx, "open", rawURL, err)
		e.Kind = KindInvalidArgument
		return nil, e
	}

	if err := eng.Mount(ctx, u.Server, u.Export); err != nil {
		_ = eng.Destroy()
		return nil, fromEngine(ctx, "mount", u.Server+":"+u.Export, err)
	}

	o.log.Debug("mounted %s", u.String())
	return &Mount{url: u, raw: rawURL, eng: eng, log: o.log}, nil
}

// WithMount opens rawURL, calls fn with the Mount and closes it whatever
// happens, including when fn panics. The error of fn wins over the one of
// Close.
func WithMount(ctx context.Context, rawURL string, fn func(*Mount) error, opts ...Option) (err error) {
	m, err := Open(ctx, rawURL, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(m)
}

// Close unmounts the export and releases the connection. A failing UMNT
// is logged and otherwise ignored. Close is idempotent.
func (m *Mount) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), umountTimeout)
	defer cancel()
	if err := m.eng.Umount(ctx); err != nil {
		m.log.Warn("umount %s:%s: %v", m.url.Server, m.url.Export, err)
	}
	if err := m.eng.Destroy(); err != nil {
		return fromEngine(context.Background(), "close", m.url.Server+":"+m.url.Export, err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (m *Mount) Closed() bool {
	return m.closed
}

// URL returns the URL the Mount was opened with.
func (m *Mount) URL() string {
	return m.raw
}

// Server returns the host serving the export.
func (m *Mount) Server() string {
	return m.url.Server
}

// Export returns the mounted export path.
func (m *Mount) Export() string {
	return m.url.Export
}

// Fd returns the socket descriptor to poll.
func (m *Mount) Fd() (int, error) {
	if m.closed {
		return -1, closedError("fd", "")
	}
	return m.eng.Fd(), nil
}

// WhichEvents returns the poll events the Mount waits for: POLLIN, plus
// POLLOUT while connecting or while requests wait to be written.
func (m *Mount) WhichEvents() (int16, error) {
	if m.closed {
		return 0, closedError("which_events", "")
	}
	return m.eng.WhichEvents(), nil
}

// Service processes the events poll reported for Fd. Completions of
// asynchronous scans run inside this call. revents 0 only expires
// requests whose deadline has passed.
//
// An error means the connection is lost: every request in flight has
// failed and the Mount can only be closed.
func (m *Mount) Service(revents int16) error {
	if m.closed {
		return closedError("service", "")
	}
	if err := m.eng.Service(revents); err != nil {
		return fromEngine(context.Background(), "service", m.url.Server, err)
	}
	return nil
}

// QueueLength returns the number of requests waiting for a reply or to be
// written.
func (m *Mount) QueueLength() (int, error) {
	if m.closed {
		return 0, closedError("queue_length", "")
	}
	return m.eng.QueueLength(), nil
}

// rpcObserver forwards engine RPC timings to m.
func rpcObserver(m metrics.CrawlMetrics) engine.Observer {
	return func(program, procedure uint32, elapsed time.Duration, err error) {
		m.ObserveRPC(rpc.ProgramName(program), procName(program, procedure), elapsed, err)
	}
}

func procName(program, procedure uint32) string {
	switch program {
	case rpc.ProgramNFS:
		return protonfs.ProcName(procedure)
	case rpc.ProgramMount:
		return mount.ProcName(procedure)
	case rpc.ProgramPortmap:
		return portmap.ProcName(procedure)
	}
	return "UNKNOWN"
}
