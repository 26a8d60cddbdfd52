package engine

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/logger"
	"github.com/marmos91/nfsusage/internal/protocol/mount"
	"github.com/marmos91/nfsusage/internal/protocol/portmap"
	"github.com/marmos91/nfsusage/internal/protocol/rpc"
)

// Mount obtains the root handle of export from the MOUNT service of
// server and connects to its NFS service. Service ports come from portmap
// unless the Config fixes them.
func (c *Context) Mount(ctx context.Context, server, export string) error {
	if c.destroyed {
		return c.record(errnoError(unix.EBADF, "context destroyed"))
	}
	if c.mounted {
		return c.record(errnoError(unix.EBUSY, "already mounted %s:%s", c.server, c.export))
	}

	mountPort := c.cfg.MountPort
	if mountPort == 0 {
		port, err := c.getPort(ctx, server, rpc.ProgramMount, rpc.MountVersion)
		if err != nil {
			return c.record(asStatusError(err, "portmap"))
		}
		mountPort = port
	}

	args, err := (&mount.MountRequest{DirPath: export}).Encode()
	if err != nil {
		return c.record(errnoError(unix.ENAMETOOLONG, "mount %s: %v", export, err))
	}
	body, err := c.oneShot(ctx, server, mountPort, rpc.ProgramMount, rpc.MountVersion, mount.MountProcMnt, args)
	if err != nil {
		return c.record(asStatusError(err, "mount"))
	}
	resp, err := mount.DecodeMountResponse(body)
	if err != nil {
		return c.record(errnoError(unix.EIO, "bad MNT reply from %s: %v", server, err))
	}
	if resp.Status != mount.MountOK {
		return c.record(mountError(export, resp.Status))
	}

	nfsPort := c.cfg.NFSPort
	if nfsPort == 0 {
		port, err := c.getPort(ctx, server, rpc.ProgramNFS, uint32(c.version))
		if err != nil {
			return c.record(asStatusError(err, "portmap"))
		}
		nfsPort = port
	}

	cn, err := dial(ctx, server, nfsPort)
	if err != nil {
		return c.record(asStatusError(err, "connect"))
	}
	cn.observe = c.cfg.Observer
	if err := cn.wait(ctx, c.cfg.Timeout, func() bool { return !cn.connecting }); err != nil {
		cn.close()
		return c.record(asStatusError(err, "connect"))
	}

	c.nfs = cn
	c.server = server
	c.export = export
	c.mountPort = mountPort
	c.root = resp.FileHandle
	c.mounted = true
	logger.Info("mounted %s:%s (mountd port %d, nfsd port %d)", server, export, mountPort, nfsPort)
	return nil
}

// Umount tells the MOUNT service the export is no longer in use. The NFS
// connection stays open until Destroy.
func (c *Context) Umount(ctx context.Context) error {
	if !c.mounted {
		return nil
	}
	c.mounted = false

	args, err := (&mount.UmountRequest{DirPath: c.export}).Encode()
	if err != nil {
		return c.record(errnoError(unix.EINVAL, "umount %s: %v", c.export, err))
	}
	if _, err := c.oneShot(ctx, c.server, c.mountPort, rpc.ProgramMount, rpc.MountVersion, mount.MountProcUmnt, args); err != nil {
		return c.record(asStatusError(err, "umount"))
	}
	logger.Debug("unmounted %s:%s", c.server, c.export)
	return nil
}

// getPort asks the portmapper of server for the TCP port of program.
func (c *Context) getPort(ctx context.Context, server string, program, version uint32) (int, error) {
	args, err := (&portmap.Mapping{Program: program, Version: version, Protocol: portmap.ProtoTCP}).Encode()
	if err != nil {
		return 0, err
	}
	body, err := c.oneShot(ctx, server, c.cfg.PortmapPort, rpc.ProgramPortmap, rpc.PortmapVersion, portmap.ProcGetPort, args)
	if err != nil {
		return 0, err
	}
	resp, err := portmap.DecodeGetPortResponse(body)
	if err != nil {
		return 0, errnoError(unix.EIO, "bad GETPORT reply from %s: %v", server, err)
	}
	if resp.Port == 0 {
		return 0, errnoError(unix.EPROTONOSUPPORT,
			"program %d version %d is not registered with portmap on %s", program, version, server)
	}
	logger.Debug("portmap: program %d version %d on %s is at port %d", program, version, server, resp.Port)
	return int(resp.Port), nil
}

// oneShot connects to server:port, runs a single call and disconnects.
func (c *Context) oneShot(ctx context.Context, server string, port int, program, version, procedure uint32, args []byte) ([]byte, error) {
	cn, err := dial(ctx, server, port)
	if err != nil {
		return nil, err
	}
	defer cn.close()
	cn.observe = c.cfg.Observer
	return c.callSync(ctx, cn, program, version, procedure, args)
}

// callSync queues a call on cn and polls until its reply arrives.
func (c *Context) callSync(ctx context.Context, cn *conn, program, version, procedure uint32, args []byte) ([]byte, error) {
	var (
		body  []byte
		cerr  *StatusError
		ready bool
	)
	xid, err := c.send(cn, program, version, procedure, args, func(b []byte, e *StatusError) {
		body, cerr, ready = b, e, true
	})
	if err != nil {
		return nil, err
	}
	if err := cn.wait(ctx, c.cfg.Timeout, func() bool { return ready }); err != nil {
		cn.cancel(xid)
		return nil, err
	}
	if cerr != nil {
		return nil, cerr
	}
	return body, nil
}
