package nfstest

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	nfsxdr "github.com/marmos91/nfsusage/internal/protocol/nfs/xdr"
)

// Node is one file system object.
type Node struct {
	ID     uint64
	Name   string
	Type   uint32
	Mode   uint32
	Size   uint64
	UID    uint32
	GID    uint32
	Rdev   types.SpecData
	Mtime  time.Time
	Denied bool

	parent   *Node
	children []*Node
}

// FS is an in-memory tree. Children keep insertion order, which is the
// order READDIRPLUS returns them in.
type FS struct {
	mu    sync.RWMutex
	nodes map[uint64]*Node
	root  *Node
	next  uint64
	Fsid  uint64
	Epoch time.Time
}

// NewFS returns a tree holding only the root directory.
func NewFS() *FS {
	f := &FS{
		nodes: make(map[uint64]*Node),
		next:  1,
		Fsid:  42,
		Epoch: time.Unix(1700000000, 500),
	}
	f.root = f.newNode(nil, "", types.NF3DIR, 0o755)
	return f
}

func (f *FS) newNode(parent *Node, name string, ftype, mode uint32) *Node {
	n := &Node{
		ID:     f.next,
		Name:   name,
		Type:   ftype,
		Mode:   mode,
		Mtime:  f.Epoch.Add(time.Duration(f.next) * time.Second),
		parent: parent,
	}
	f.next++
	f.nodes[n.ID] = n
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	return n
}

func splitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// MkdirAll creates the directory p and any missing parents.
func (f *FS) MkdirAll(p string) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mkdirAll(splitPath(p))
}

func (f *FS) mkdirAll(parts []string) *Node {
	dir := f.root
	for _, name := range parts {
		child := dir.child(name)
		if child == nil {
			child = f.newNode(dir, name, types.NF3DIR, 0o755)
		}
		dir = child
	}
	return dir
}

// Add creates a non-directory object at p, creating parents.
func (f *FS) Add(p string, ftype uint32, size uint64) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := splitPath(p)
	dir := f.mkdirAll(parts[:len(parts)-1])
	n := f.newNode(dir, parts[len(parts)-1], ftype, 0o644)
	n.Size = size
	return n
}

// WriteFile creates a regular file of the given size.
func (f *FS) WriteFile(p string, size uint64) *Node {
	return f.Add(p, types.NF3REG, size)
}

// Deny makes LOOKUP and READDIRPLUS inside p fail with NFS3ERR_ACCES.
func (f *FS) Deny(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.walk(splitPath(p)); n != nil {
		n.Denied = true
	}
}

// Lookup returns the node at p, or nil.
func (f *FS) Lookup(p string) *Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.walk(splitPath(p))
}

func (f *FS) walk(parts []string) *Node {
	n := f.root
	for _, name := range parts {
		if n = n.child(name); n == nil {
			return nil
		}
	}
	return n
}

func (f *FS) byHandle(handle []byte) *Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nodes[nfsxdr.ExtractFileID(handle)]
}

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Handle returns the file handle of n.
func (n *Node) Handle() []byte {
	return nfsxdr.HandleFromFileID(n.ID)
}

func (f *FS) attr(n *Node) *types.NFSFileAttr {
	nlink := uint32(1)
	size := n.Size
	if n.Type == types.NF3DIR {
		nlink = 2
		size = 4096
		for _, c := range n.children {
			if c.Type == types.NF3DIR {
				nlink++
			}
		}
	}
	mtime := nfsxdr.TimeToTimeVal(n.Mtime)
	return &types.NFSFileAttr{
		Type:   n.Type,
		Mode:   n.Mode,
		Nlink:  nlink,
		UID:    n.UID,
		GID:    n.GID,
		Size:   size,
		Used:   (size + 4095) &^ 4095,
		Rdev:   n.Rdev,
		Fsid:   f.Fsid,
		Fileid: n.ID,
		Atime:  mtime,
		Mtime:  mtime,
		Ctime:  mtime,
	}
}

// listing returns ".", ".." and the children of dir as READDIRPLUS
// entries. The cookie of entry i is i+1.
func (f *FS) listing(dir *Node) []types.DirEntryPlus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	parent := dir.parent
	if parent == nil {
		parent = dir
	}
	entries := []types.DirEntryPlus{
		{Fileid: dir.ID, Name: ".", Attr: f.attr(dir), Handle: dir.Handle()},
		{Fileid: parent.ID, Name: "..", Attr: f.attr(parent), Handle: parent.Handle()},
	}
	for _, c := range dir.children {
		entries = append(entries, types.DirEntryPlus{
			Fileid: c.ID,
			Name:   c.Name,
			Attr:   f.attr(c),
			Handle: c.Handle(),
		})
	}
	for i := range entries {
		entries[i].Cookie = uint64(i + 1)
	}
	return entries
}
