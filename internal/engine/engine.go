// Package engine is a single-threaded NFSv3 client engine.
//
// A Context owns one TCP connection to an NFS server and multiplexes RPCs
// on it. It never blocks and never starts goroutines on its own: callers
// either use the blocking helpers (Mount, OpenDir), which run a private
// poll loop, or drive the connection themselves through Fd, WhichEvents
// and Service. Completions of asynchronous requests run inside Service on
// the caller's goroutine.
package engine

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/nfs"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTimeout         = 60 * time.Second
	DefaultLookupCacheSize = 4096
)

// Observer is told about every completed RPC, successful or not.
type Observer func(program, procedure uint32, elapsed time.Duration, err error)

// Config configures a Context.
type Config struct {
	// Timeout bounds each blocking operation and each individual request.
	Timeout time.Duration

	// PortmapPort is where GETPORT queries are sent.
	PortmapPort int

	// MountPort and NFSPort skip the portmap lookup when non-zero.
	MountPort int
	NFSPort   int

	// Credentials sent with every call as AUTH_UNIX.
	UID         uint32
	GID         uint32
	MachineName string

	// LookupCacheSize is the number of path to handle entries kept.
	LookupCacheSize int

	// ReaddirMaxCount is the READDIRPLUS maxcount, in bytes.
	ReaddirMaxCount uint32

	Observer Observer
}

// Context is one engine instance. It is not safe for concurrent use.
type Context struct {
	cfg     Config
	version int
	cred    rpc.OpaqueAuth
	xid     uint32

	server    string
	export    string
	mountPort int
	root      []byte
	mounted   bool

	nfs     *conn
	lookups *lru.Cache[string, []byte]

	lastErr   string
	destroyed bool
}

// New allocates a Context. No network traffic happens until Mount.
func New(cfg Config) (*Context, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PortmapPort == 0 {
		cfg.PortmapPort = rpc.PortmapPort
	}
	if cfg.LookupCacheSize <= 0 {
		cfg.LookupCacheSize = DefaultLookupCacheSize
	}
	if cfg.ReaddirMaxCount == 0 {
		cfg.ReaddirMaxCount = nfs.DefaultMaxCount
	}
	if cfg.MachineName == "" {
		cfg.MachineName, _ = os.Hostname()
	}
	if len(cfg.MachineName) > rpc.MaxMachineNameLen {
		cfg.MachineName = cfg.MachineName[:rpc.MaxMachineNameLen]
	}

	cred, err := rpc.NewUnixCredential(&rpc.UnixAuth{
		Stamp:       uint32(time.Now().Unix()),
		MachineName: cfg.MachineName,
		UID:         cfg.UID,
		GID:         cfg.GID,
		GIDs:        []uint32{cfg.GID},
	})
	if err != nil {
		return nil, fmt.Errorf("build credential: %w", err)
	}

	lookups, err := lru.New[string, []byte](cfg.LookupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}

	return &Context{
		cfg:     cfg,
		version: rpc.NFSVersion3,
		cred:    cred,
		xid:     uint32(time.Now().UnixNano()),
		lookups: lookups,
	}, nil
}

// SetVersion selects the NFS protocol version. Only version 3 is
// implemented.
func (c *Context) SetVersion(version int) error {
	if version != rpc.NFSVersion3 {
		return c.record(errnoError(unix.EPROTONOSUPPORT,
			"NFS version %d is not supported, only version %d", version, rpc.NFSVersion3))
	}
	c.version = version
	return nil
}

// Version returns the selected NFS version.
func (c *Context) Version() int {
	return c.version
}

// Fd returns the socket of the NFS connection, or -1 before Mount.
func (c *Context) Fd() int {
	if c.nfs == nil {
		return -1
	}
	return c.nfs.fd
}

// WhichEvents returns the poll events the engine is waiting for.
func (c *Context) WhichEvents() int16 {
	if c.nfs == nil {
		return 0
	}
	return c.nfs.whichEvents()
}

// Service hands observed poll events to the engine. revents may be 0 to
// only check request deadlines. A returned error is fatal for the
// connection; every in-flight request has been failed with it.
func (c *Context) Service(revents int16) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.nfs.service(revents); err != nil {
		return c.record(asStatusError(err, "service"))
	}
	return nil
}

// QueueLength returns the number of requests waiting for a reply.
func (c *Context) QueueLength() int {
	if c.nfs == nil {
		return 0
	}
	return len(c.nfs.pending)
}

// LastError returns the message of the most recent failure.
func (c *Context) LastError() string {
	return c.lastErr
}

// Server returns the host passed to Mount.
func (c *Context) Server() string {
	return c.server
}

// Export returns the export passed to Mount.
func (c *Context) Export() string {
	return c.export
}

// Mounted reports whether Mount succeeded and Umount has not run.
func (c *Context) Mounted() bool {
	return c.mounted
}

// Destroy closes every connection and releases the context. Pending
// requests fail with ECANCELED. It is safe to call more than once.
func (c *Context) Destroy() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	if c.nfs != nil {
		c.nfs.close()
	}
	c.lookups.Purge()
	logger.Debug("engine context for %s:%s destroyed", c.server, c.export)
	return nil
}

func (c *Context) usable() error {
	if c.destroyed {
		return c.record(errnoError(unix.EBADF, "context destroyed"))
	}
	if c.nfs == nil {
		return c.record(errnoError(unix.ENOTCONN, "not mounted"))
	}
	return nil
}

func (c *Context) record(err *StatusError) *StatusError {
	c.lastErr = err.Message
	return err
}

func (c *Context) nextXID() uint32 {
	c.xid++
	return c.xid
}

// send encodes and queues one call on cn.
func (c *Context) send(cn *conn, program, version, procedure uint32, args []byte, done replyFunc) (uint32, error) {
	xid := c.nextXID()
	record, err := rpc.EncodeCall(xid, program, version, procedure, c.cred, args)
	if err != nil {
		return 0, errnoError(unix.EINVAL, "encode call: %v", err)
	}

	now := time.Now()
	cl := &call{
		xid:       xid,
		program:   program,
		procedure: procedure,
		started:   now,
		done:      done,
	}
	if c.cfg.Timeout > 0 {
		cl.deadline = now.Add(c.cfg.Timeout)
	}
	if err := cn.queue(cl, record); err != nil {
		return 0, err
	}
	return xid, nil
}
