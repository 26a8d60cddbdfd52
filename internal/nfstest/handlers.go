package nfstest

import (
	"errors"
	"path"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/mount"
	"github.com/marmos91/nfsusage/internal/protocol/nfs"
	"github.com/marmos91/nfsusage/internal/protocol/nfs/types"
	"github.com/marmos91/nfsusage/internal/protocol/portmap"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

var errProcUnavail = errors.New("procedure unavailable")

// cookieVerf is returned with every listing. The tree never changes
// while a test lists it, so one verifier is enough.
var cookieVerf = [types.CookieVerfSize]byte{'n', 'f', 's', 't', 'e', 's', 't', 0}

type rpcRequest interface {
	*nfs.LookupRequest |
		*nfs.ReadDirPlusRequest |
		*mount.MountRequest |
		*portmap.Mapping
}

type rpcResponse interface {
	*nfs.LookupResponse |
		*nfs.ReadDirPlusResponse |
		*mount.MountResponse |
		*portmap.GetPortResponse
	Encode() ([]byte, error)
}

// handleRequest decodes, handles and encodes one call. Decode failures are
// answered with errorStatus rather than dropping the connection.
func handleRequest[Req rpcRequest, Resp rpcResponse](
	data []byte,
	decode func([]byte) (Req, error),
	handle func(Req) Resp,
	errorStatus uint32,
	makeErrorResp func(uint32) Resp,
) ([]byte, error) {
	req, err := decode(data)
	if err != nil {
		logger.Debug("Error decoding request: %v", err)
		return makeErrorResp(errorStatus).Encode()
	}

	encoded, err := handle(req).Encode()
	if err != nil {
		logger.Debug("Error encoding response: %v", err)
		return makeErrorResp(errorStatus).Encode()
	}
	return encoded, nil
}

func (c *conn) handlePortmapProcedure(procedure uint32, data []byte) ([]byte, error) {
	switch procedure {
	case portmap.ProcNull:
		c.server.count("PORTMAP.NULL")
		return nil, nil
	case portmap.ProcGetPort:
		c.server.count("PORTMAP.GETPORT")
		return handleRequest(
			data,
			portmap.DecodeMapping,
			c.server.getPort,
			0,
			func(uint32) *portmap.GetPortResponse { return &portmap.GetPortResponse{} },
		)
	}
	return nil, errProcUnavail
}

func (c *conn) handleMountProcedure(procedure uint32, data []byte) ([]byte, error) {
	switch procedure {
	case mount.MountProcNull:
		c.server.count("MOUNT.NULL")
		return nil, nil
	case mount.MountProcMnt:
		c.server.count("MOUNT.MNT")
		return handleRequest(
			data,
			mount.DecodeMountRequest,
			c.server.mnt,
			mount.MountErrInval,
			func(status uint32) *mount.MountResponse { return &mount.MountResponse{Status: status} },
		)
	case mount.MountProcUmnt:
		c.server.count("MOUNT.UMNT")
		req, err := mount.DecodeUmountRequest(data)
		if err != nil {
			return nil, err
		}
		c.server.umnt(req.DirPath)
		return nil, nil
	}
	return nil, errProcUnavail
}

func (c *conn) handleNFSProcedure(procedure uint32, data []byte) ([]byte, error) {
	c.server.count("NFS." + nfs.ProcName(procedure))

	switch procedure {
	case nfs.NFSProcNull:
		return nil, nil
	case nfs.NFSProcLookup:
		return handleRequest(
			data,
			nfs.DecodeLookupRequest,
			c.server.lookup,
			types.NFS3ErrInval,
			func(status uint32) *nfs.LookupResponse { return &nfs.LookupResponse{Status: status} },
		)
	case nfs.NFSProcReadDirPlus:
		return handleRequest(
			data,
			nfs.DecodeReadDirPlusRequest,
			c.server.readDirPlus,
			types.NFS3ErrInval,
			func(status uint32) *nfs.ReadDirPlusResponse { return &nfs.ReadDirPlusResponse{Status: status} },
		)
	}
	return nil, errProcUnavail
}

func (s *Server) getPort(m *portmap.Mapping) *portmap.GetPortResponse {
	if m.Protocol != portmap.ProtoTCP {
		return &portmap.GetPortResponse{}
	}
	switch {
	case m.Program == rpc.ProgramMount && m.Version == rpc.MountVersion,
		m.Program == rpc.ProgramNFS && m.Version == rpc.NFSVersion3:
		return &portmap.GetPortResponse{Port: uint32(s.Port())}
	}
	return &portmap.GetPortResponse{}
}

func (s *Server) exported(p string) bool {
	if len(s.exports) == 0 {
		return true
	}
	for _, e := range s.exports {
		if path.Clean(e) == path.Clean(p) {
			return true
		}
	}
	return false
}

func (s *Server) mnt(req *mount.MountRequest) *mount.MountResponse {
	if !s.exported(req.DirPath) {
		return &mount.MountResponse{Status: mount.MountErrAccess}
	}
	n := s.fs.Lookup(req.DirPath)
	switch {
	case n == nil:
		return &mount.MountResponse{Status: mount.MountErrNoEnt}
	case n.Type != types.NF3DIR:
		return &mount.MountResponse{Status: mount.MountErrNotDir}
	}

	s.mu.Lock()
	s.mounts[path.Clean(req.DirPath)]++
	s.mu.Unlock()

	return &mount.MountResponse{
		Status:      mount.MountOK,
		FileHandle:  n.Handle(),
		AuthFlavors: []int32{rpc.AuthUnix, rpc.AuthNull},
	}
}

func (s *Server) umnt(dirPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key := path.Clean(dirPath); s.mounts[key] > 0 {
		s.mounts[key]--
	}
}

func (s *Server) lookup(req *nfs.LookupRequest) *nfs.LookupResponse {
	dir := s.fs.byHandle(req.DirHandle)
	if dir == nil {
		return &nfs.LookupResponse{Status: types.NFS3ErrStale}
	}

	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	dirAttr := s.fs.attr(dir)
	switch {
	case dir.Type != types.NF3DIR:
		return &nfs.LookupResponse{Status: types.NFS3ErrNotDir, DirAttr: dirAttr}
	case dir.Denied:
		return &nfs.LookupResponse{Status: types.NFS3ErrAcces, DirAttr: dirAttr}
	case len(req.Filename) > 255:
		return &nfs.LookupResponse{Status: types.NFS3ErrNameTooLong, DirAttr: dirAttr}
	}

	child := dir.child(req.Filename)
	if child == nil {
		return &nfs.LookupResponse{Status: types.NFS3ErrNoEnt, DirAttr: dirAttr}
	}
	return &nfs.LookupResponse{
		Status:     types.NFS3OK,
		FileHandle: child.Handle(),
		Attr:       s.fs.attr(child),
		DirAttr:    dirAttr,
	}
}

func (s *Server) readDirPlus(req *nfs.ReadDirPlusRequest) *nfs.ReadDirPlusResponse {
	dir := s.fs.byHandle(req.DirHandle)
	if dir == nil {
		return &nfs.ReadDirPlusResponse{Status: types.NFS3ErrStale}
	}

	s.fs.mu.RLock()
	dirAttr := s.fs.attr(dir)
	ftype, denied := dir.Type, dir.Denied
	s.fs.mu.RUnlock()

	switch {
	case ftype != types.NF3DIR:
		return &nfs.ReadDirPlusResponse{Status: types.NFS3ErrNotDir, DirAttr: dirAttr}
	case denied:
		return &nfs.ReadDirPlusResponse{Status: types.NFS3ErrAcces, DirAttr: dirAttr}
	case req.Cookie != 0 && req.CookieVerf != cookieVerf:
		return &nfs.ReadDirPlusResponse{Status: types.NFS3ErrBadCookie, DirAttr: dirAttr}
	}

	entries := s.fs.listing(dir)
	if req.Cookie > uint64(len(entries)) {
		return &nfs.ReadDirPlusResponse{Status: types.NFS3ErrBadCookie, DirAttr: dirAttr}
	}
	entries = entries[req.Cookie:]

	eof := true
	if s.pageSize > 0 && len(entries) > s.pageSize {
		entries = entries[:s.pageSize]
		eof = false
	}

	return &nfs.ReadDirPlusResponse{
		Status:     types.NFS3OK,
		DirAttr:    dirAttr,
		CookieVerf: cookieVerf,
		Entries:    entries,
		Eof:        eof,
	}
}
