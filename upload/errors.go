package upload

import (
	"errors"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
)

// Error kinds. Match them with errors.Is.
var (
	ErrSecurity       = errors.New("security check failed")
	ErrMissingFile    = errors.New("missing file")
	ErrTransfer       = errors.New("transfer failed")
	ErrSizeLimit      = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
	ErrStorage        = errors.New("storage failed")
)

// Error is a rejected upload. Message is safe to show to the customer.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinel.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Fault is a transfer-level failure reported by the HTTP layer.
type Fault int

const (
	FaultNone Fault = iota
	FaultIniSize
	FaultFormSize
	FaultPartial
	FaultNoFile
	FaultNoTmpDir
	FaultCantWrite
	FaultExtension
	FaultUnknown
)

// Message returns the customer-facing text for f.
func (f Fault) Message() string {
	switch f {
	case FaultIniSize, FaultFormSize:
		return "The file exceeds the maximum allowed size."
	case FaultPartial:
		return "The file was only partially uploaded. Please try again."
	case FaultNoFile:
		return "No file was uploaded."
	case FaultNoTmpDir, FaultCantWrite, FaultExtension:
		return "Server error while uploading the file. Please contact the administrator."
	default:
		return "Unknown error while uploading the file. Please try again."
	}
}

// ClassifyTransfer maps an error from reading a multipart request to a Fault.
func ClassifyTransfer(err error) Fault {
	if err == nil {
		return FaultNone
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return FaultIniSize
	}
	if errors.Is(err, multipart.ErrMessageTooLarge) {
		return FaultFormSize
	}
	if errors.Is(err, http.ErrMissingFile) {
		return FaultNoFile
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return FaultPartial
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		// multipart spills large parts to os.CreateTemp
		if pathErr.Op == "open" || pathErr.Op == "createtemp" {
			return FaultNoTmpDir
		}
		return FaultCantWrite
	}
	return FaultUnknown
}
