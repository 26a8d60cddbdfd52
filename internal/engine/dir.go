package engine

import (
	"context"
	"path"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/nfs"
	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	nfsxdr "github.com/marmos91/nfsusage/internal/protocol/nfs/xdr"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

// DefaultBlockSize is reported as the preferred I/O size of every entry.
const DefaultBlockSize = 4096

// Dirent is one directory entry with its attributes. Entries the server
// returned without attributes only carry Name and Inode.
type Dirent struct {
	Name    string
	Inode   uint64
	Type    uint32 // ftype3, 0 when attributes are missing
	Mode    uint32 // permission bits with the S_IF* type bits
	Size    uint64
	Used    uint64
	UID     uint32
	GID     uint32
	Nlink   uint32
	Dev     uint64
	Rdev    uint64
	Blksize uint64
	Blocks  uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

func newDirent(e *types.DirEntryPlus) Dirent {
	d := Dirent{Name: e.Name, Inode: e.Fileid, Blksize: DefaultBlockSize}
	if a := e.Attr; a != nil {
		d.Type = a.Type
		d.Mode = nfsxdr.PosixMode(a)
		d.Size = a.Size
		d.Used = a.Used
		d.UID = a.UID
		d.GID = a.GID
		d.Nlink = a.Nlink
		d.Dev = a.Fsid
		d.Rdev = nfsxdr.Rdev(a.Rdev)
		d.Blocks = nfsxdr.Blocks(a.Used)
		d.Atime = nfsxdr.TimeValToTime(a.Atime)
		d.Mtime = nfsxdr.TimeValToTime(a.Mtime)
		d.Ctime = nfsxdr.TimeValToTime(a.Ctime)
	}
	return d
}

// Dir is an opened directory. The whole listing is fetched before the
// open completes, so reading entries never touches the network.
type Dir struct {
	path    string
	entries []Dirent
	pos     int
	closed  bool
}

// NewDir builds a Dir over entries. Used by the engine and by test fakes.
func NewDir(dirPath string, entries []Dirent) *Dir {
	return &Dir{path: dirPath, entries: entries}
}

// Path returns the path the directory was opened with.
func (d *Dir) Path() string {
	return d.path
}

// Len returns the number of entries not yet read.
func (d *Dir) Len() int {
	if d.closed {
		return 0
	}
	return len(d.entries) - d.pos
}

// Next returns the next entry in server order, including "." and "..".
func (d *Dir) Next() (*Dirent, bool) {
	if d.closed || d.pos >= len(d.entries) {
		return nil, false
	}
	e := &d.entries[d.pos]
	d.pos++
	return e, true
}

// Close releases the entries. Safe to call more than once.
func (d *Dir) Close() {
	d.closed = true
	d.entries = nil
}

// Closed reports whether Close ran.
func (d *Dir) Closed() bool {
	return d.closed
}

// Completion is the result slot of OpenDirAsync. The engine fills it
// inside Service; callers only read it.
//
// Setting Abandoned before completion tells the engine nobody will look at
// the result: a successfully opened Dir is closed immediately instead of
// being stored.
type Completion struct {
	Done      bool
	Status    int32
	Message   string
	Dir       *Dir
	Abandoned bool
}

// OpenDirAsync queues the opening of dirPath. comp is filled when the
// listing is complete or failed. An error return means nothing was queued
// and comp will not be touched.
func (c *Context) OpenDirAsync(dirPath string, comp *Completion) error {
	_, err := c.openDirAsync(dirPath, comp)
	return err
}

func (c *Context) openDirAsync(dirPath string, comp *Completion) (*inflight, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, c.record(errnoError(unix.EINVAL, "nil completion"))
	}

	p := cleanPath(dirPath)
	op := &inflight{}
	return op, c.openDir(p, op, func(dir *Dir, err *StatusError) {
		comp.Done = true
		if err != nil {
			comp.Status = err.Status
			comp.Message = err.Message
			c.lastErr = err.Message
			return
		}
		if comp.Abandoned {
			logger.Debug("opendir %s completed after being abandoned", p)
			dir.Close()
			return
		}
		comp.Dir = dir
	})
}

// OpenDir opens dirPath and waits for the listing.
func (c *Context) OpenDir(ctx context.Context, dirPath string) (*Dir, error) {
	var comp Completion
	op, err := c.openDirAsync(dirPath, &comp)
	if err != nil {
		return nil, err
	}

	if err := c.nfs.wait(ctx, c.cfg.Timeout, func() bool { return comp.Done }); err != nil && !comp.Done {
		// Nobody waits for the reply any more; a late one is dropped.
		c.nfs.cancel(op.xid)
		return nil, c.record(asStatusError(err, "opendir "+dirPath))
	}
	if comp.Status != 0 {
		return nil, &StatusError{Status: comp.Status, Message: comp.Message}
	}
	return comp.Dir, nil
}

type openDone func(dir *Dir, err *StatusError)

// inflight tracks the one call an open is waiting on at any time.
type inflight struct {
	xid uint32
}

func (c *Context) openDir(p string, op *inflight, done openDone) error {
	return c.resolve(p, op, func(handle []byte, err *StatusError) {
		if err != nil {
			done(nil, err)
			return
		}
		if err := c.readDir(p, handle, op, done); err != nil {
			done(nil, asStatusError(err, "readdirplus "+p))
		}
	})
}

// resolve turns an absolute path into a file handle, one LOOKUP per
// component not already in the cache. done runs exactly once unless an
// error is returned.
func (c *Context) resolve(p string, op *inflight, done func([]byte, *StatusError)) error {
	if p == "/" {
		done(c.root, nil)
		return nil
	}

	parts := strings.Split(p[1:], "/")
	start, handle := 0, c.root
	for i := len(parts); i > 0; i-- {
		if h, ok := c.lookups.Get("/" + strings.Join(parts[:i], "/")); ok {
			start, handle = i, h
			break
		}
	}

	var step func(i int, dir []byte) error
	step = func(i int, dir []byte) error {
		if i == len(parts) {
			done(dir, nil)
			return nil
		}

		sub := "/" + strings.Join(parts[:i+1], "/")
		args, err := (&nfs.LookupRequest{DirHandle: dir, Filename: parts[i]}).Encode()
		if err != nil {
			return errnoError(unix.EINVAL, "lookup %s: %v", sub, err)
		}

		op.xid, err = c.send(c.nfs, rpc.ProgramNFS, uint32(c.version), nfs.NFSProcLookup, args, func(body []byte, serr *StatusError) {
			if serr != nil {
				done(nil, serr)
				return
			}
			resp, err := nfs.DecodeLookupResponse(body)
			if err != nil {
				done(nil, errnoError(unix.EIO, "bad LOOKUP reply for %s: %v", sub, err))
				return
			}
			if resp.Status != types.NFS3OK {
				done(nil, nfsError(nfs.NFSProcLookup, sub, resp.Status))
				return
			}
			if resp.Attr != nil && resp.Attr.Type != types.NF3DIR {
				done(nil, nfsError(nfs.NFSProcReadDirPlus, sub, types.NFS3ErrNotDir))
				return
			}
			c.lookups.Add(sub, resp.FileHandle)
			if err := step(i+1, resp.FileHandle); err != nil {
				done(nil, asStatusError(err, "lookup "+sub))
			}
		})
		return err
	}
	return step(start, handle)
}

// readDir fetches the whole listing of the directory behind handle with
// READDIRPLUS, following cookies until eof.
func (c *Context) readDir(p string, handle []byte, op *inflight, done openDone) error {
	dir := &Dir{path: p}
	dirCount := min(c.cfg.ReaddirMaxCount, nfs.DefaultDirCount)

	var next func(cookie uint64, verf [types.CookieVerfSize]byte) error
	next = func(cookie uint64, verf [types.CookieVerfSize]byte) error {
		args, err := (&nfs.ReadDirPlusRequest{
			DirHandle:  handle,
			Cookie:     cookie,
			CookieVerf: verf,
			DirCount:   dirCount,
			MaxCount:   c.cfg.ReaddirMaxCount,
		}).Encode()
		if err != nil {
			return errnoError(unix.EINVAL, "readdirplus %s: %v", p, err)
		}

		op.xid, err = c.send(c.nfs, rpc.ProgramNFS, uint32(c.version), nfs.NFSProcReadDirPlus, args, func(body []byte, serr *StatusError) {
			if serr != nil {
				done(nil, serr)
				return
			}
			resp, err := nfs.DecodeReadDirPlusResponse(body)
			if err != nil {
				done(nil, errnoError(unix.EIO, "bad READDIRPLUS reply for %s: %v", p, err))
				return
			}
			if resp.Status != types.NFS3OK {
				done(nil, nfsError(nfs.NFSProcReadDirPlus, p, resp.Status))
				return
			}

			for i := range resp.Entries {
				e := &resp.Entries[i]
				dir.entries = append(dir.entries, newDirent(e))
				c.rememberChild(p, e)
			}

			if resp.Eof {
				logger.Debug("opendir %s: %d entries", p, len(dir.entries))
				done(dir, nil)
				return
			}
			if len(resp.Entries) == 0 {
				done(nil, errnoError(unix.EIO, "READDIRPLUS of %s returned no entries and no eof", p))
				return
			}
			last := resp.Entries[len(resp.Entries)-1].Cookie
			if err := next(last, resp.CookieVerf); err != nil {
				done(nil, asStatusError(err, "readdirplus "+p))
			}
		})
		return err
	}
	return next(0, [types.CookieVerfSize]byte{})
}

// rememberChild caches the handle of a subdirectory returned by
// READDIRPLUS so that opening it later needs no LOOKUP.
func (c *Context) rememberChild(parent string, e *types.DirEntryPlus) {
	if e.Name == "." || e.Name == ".." || len(e.Handle) == 0 {
		return
	}
	if e.Attr == nil || e.Attr.Type != types.NF3DIR {
		return
	}
	c.lookups.Add(path.Join(parent, e.Name), e.Handle)
}

// cleanPath makes p absolute and removes "." components, duplicate and
// trailing slashes. ".." is resolved lexically.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
