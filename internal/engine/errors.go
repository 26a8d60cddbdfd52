package engine

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/marmos91/nfsusage/internal/protocol/mount"
	"github.com/marmos91/nfsusage/internal/protocol/nfs"
)

// StatusError is a failed engine operation.
//
// Status follows the engine convention: 0 is success, failures are
// negative. NFS and MOUNT failures carry the negated protocol status;
// transport failures carry a negated errno (EIO, ETIMEDOUT, ECONNREFUSED,
// ...). Message is the human readable text also kept by LastError.
type StatusError struct {
	Status  int32
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Errno returns the errno equivalent of the status. For small NFS status
// values the numeric spaces coincide.
func (e *StatusError) Errno() unix.Errno {
	return unix.Errno(-e.Status)
}

// StatusOf extracts the status of err. nil maps to 0 and errors that are
// not a *StatusError map to -EIO.
func StatusOf(err error) int32 {
	if err == nil {
		return 0
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return -int32(unix.EIO)
}

func errnoError(errno unix.Errno, format string, args ...any) *StatusError {
	return &StatusError{
		Status:  -int32(errno),
		Message: fmt.Sprintf(format, args...),
	}
}

func nfsError(proc uint32, path string, status uint32) *StatusError {
	return &StatusError{
		Status: -int32(status),
		Message: fmt.Sprintf("%s of %s failed with %s(%d)",
			nfs.ProcName(proc), path, nfs.NFSStatusToString(status), -int32(status)),
	}
}

func mountError(export string, status uint32) *StatusError {
	return &StatusError{
		Status: -int32(status),
		Message: fmt.Sprintf("mount of %s failed with %s(%d)",
			export, mount.StatusToString(status), -int32(status)),
	}
}

// asStatusError wraps any error into a *StatusError, keeping existing ones.
func asStatusError(err error, context string) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errnoError(errno, "%s: %v", context, err)
	}
	return errnoError(unix.EIO, "%s: %v", context, err)
}
