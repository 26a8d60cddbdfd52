package nfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/marmos91/nfsusage/internal/engine"
)

// ErrorKind is the category of a failed operation.
//
// Kinds are derived from the status the server (or the local engine)
// reported, so callers can branch on them without knowing NFS status
// numbers.
type ErrorKind int

const (
	// KindGeneric is every failure without a more precise category.
	KindGeneric ErrorKind = iota

	// KindNotFound: the path or one of its components does not exist.
	KindNotFound

	// KindAlreadyExists: the target already exists.
	KindAlreadyExists

	// KindIsDirectory: a file was expected but the target is a directory.
	KindIsDirectory

	// KindNotDirectory: a directory was expected, or a path component is
	// not a directory.
	KindNotDirectory

	// KindPermissionDenied: the server refused access.
	KindPermissionDenied

	// KindInvalidArgument: malformed URL, bad name or unsupported option.
	KindInvalidArgument

	// KindClosedSession: the Mount was closed before the call.
	KindClosedSession

	// KindRuntime: the client engine could not be allocated.
	KindRuntime
)

// String returns the snake_case name of the kind, as used in metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindIsDirectory:
		return "is_directory"
	case KindNotDirectory:
		return "not_directory"
	case KindPermissionDenied:
		return "permission_denied"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindClosedSession:
		return "closed_session"
	case KindRuntime:
		return "runtime"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status magnitudes recognised by Classify. The low values are shared by
// NFS3ERR_*, NFS4ERR_* and errno.
const (
	statusPerm        = 1
	statusNoEnt       = 2
	statusAccess      = 13
	statusExist       = 17
	statusNotDir      = 20
	statusIsDir       = 21
	statusInval       = 22
	statusNameTooLong = 63
	statusBadChar     = 10040
)

// Classify maps the magnitude of an engine status onto an ErrorKind.
func Classify(code uint32) ErrorKind {
	switch code {
	case statusExist:
		return KindAlreadyExists
	case statusIsDir:
		return KindIsDirectory
	case statusNotDir:
		return KindNotDirectory
	case statusNoEnt:
		return KindNotFound
	case statusAccess, statusPerm:
		return KindPermissionDenied
	case statusBadChar, statusNameTooLong, statusInval:
		return KindInvalidArgument
	}
	return KindGeneric
}

// Sentinels matched by (*Error).Is in addition to the io/fs ones.
var (
	ErrClosedSession = errors.New("nfs: mount is closed")
	ErrNotDirectory  = errors.New("nfs: not a directory")
	ErrIsDirectory   = errors.New("nfs: is a directory")
)

// Error is returned by every failing operation of the package.
type Error struct {
	// Op is the operation that failed: "open", "scandir", "service", ...
	Op string

	// Path is the URL or directory path involved, if any.
	Path string

	Kind ErrorKind

	// Status is the engine status, 0 when the failure is local.
	Status int32

	// Message is the engine's message verbatim.
	Message string

	// Err is the underlying cause, if there is one worth unwrapping.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path == "" {
		return e.Op + ": " + msg
	}
	return e.Op + " " + e.Path + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind against the io/fs sentinels and the
// package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Kind == KindNotFound
	case fs.ErrExist:
		return e.Kind == KindAlreadyExists
	case fs.ErrPermission:
		return e.Kind == KindPermissionDenied
	case fs.ErrInvalid:
		return e.Kind == KindInvalidArgument
	case fs.ErrClosed, ErrClosedSession:
		return e.Kind == KindClosedSession
	case ErrNotDirectory:
		return e.Kind == KindNotDirectory
	case ErrIsDirectory:
		return e.Kind == KindIsDirectory
	}
	return false
}

// KindOf returns the kind of err, looking through wrapping. Errors that
// do not come from this package are KindGeneric.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}

func closedError(op, path string) *Error {
	return &Error{
		Op:      op,
		Path:    path,
		Kind:    KindClosedSession,
		Message: "mount is closed",
		Err:     ErrClosedSession,
	}
}

// fromStatus builds the error of a failed engine call from its status and
// message.
func fromStatus(op, path string, status int32, message string) *Error {
	kind := KindGeneric
	if status < 0 {
		kind = Classify(uint32(-status))
	}
	return &Error{
		Op:      op,
		Path:    path,
		Kind:    kind,
		Status:  status,
		Message: message,
	}
}

// fromEngine converts an engine error. A cancelled or expired ctx is kept
// as the cause so errors.Is(err, context.Canceled) works.
func fromEngine(ctx context.Context, op, path string, err error) *Error {
	var se *engine.StatusError
	if !errors.As(err, &se) {
		return &Error{Op: op, Path: path, Kind: KindGeneric, Message: err.Error(), Err: err}
	}
	e := fromStatus(op, path, se.Status, se.Message)
	e.Err = se
	if ctx.Err() != nil {
		e.Err = ctx.Err()
	}
	return e
}
