// Package nfs lists directories of an NFS export without mounting it in
// the kernel.
//
// A Mount is opened from an nfs:// URL:
//
//	m, err := nfs.Open(ctx, "nfs://server/export?uid=1000&gid=1000")
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	s, err := nfs.ScanDir(ctx, m, "/projects")
//	if err != nil {
//		return err
//	}
//	for e := range s.All() {
//		fmt.Println(e.Path(), e.Size())
//	}
//
// # Reactor mode
//
// ScanDirAsync returns a pending Scanner whose open advances only when the
// caller services the Mount. Poll Fd for WhichEvents, pass what poll
// reports to Service and check Ready:
//
//	s, _ := nfs.ScanDirAsync(m, "/projects")
//	for {
//		if ok, err := s.Ready(); ok || err != nil {
//			break
//		}
//		fd, _ := m.Fd()
//		events, _ := m.WhichEvents()
//		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
//		unix.Poll(fds, 1000)
//		if err := m.Service(fds[0].Revents); err != nil {
//			return err
//		}
//	}
//
// Nothing in this package starts goroutines. A Mount and its scanners
// belong to one goroutine; use one Mount per goroutine for parallelism.
//
// # Errors
//
// Failures are *Error values carrying an ErrorKind and the server's
// message. They match the io/fs sentinels, so
// errors.Is(err, fs.ErrNotExist) works for missing paths.
package nfs
