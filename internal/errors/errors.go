package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a sync error code.
type ErrorCode string

const (
	ErrAuth               ErrorCode = "AUTH"                // fatal: re-run consent
	ErrMalformedTimestamp ErrorCode = "MALFORMED_TIMESTAMP" // fatal for the run
	ErrMissingMetadata    ErrorCode = "MISSING_METADATA"    // recoverable: synthesize
	ErrUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"  // recoverable: skip metadata
	ErrUnreadableMetadata ErrorCode = "UNREADABLE_METADATA" // recoverable: keep the existing block
	ErrBoundaryNotFound   ErrorCode = "BOUNDARY_NOT_FOUND"  // recoverable: everything is new
	ErrNothingNew         ErrorCode = "NOTHING_NEW"         // terminal, not a failure
	ErrRemote             ErrorCode = "REMOTE"              // service or network failure
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrNotFound           ErrorCode = "NOT_FOUND" // ledger lookups
	ErrInternal           ErrorCode = "INTERNAL"
)

// SyncError represents a structured error with code, message, and details.
type SyncError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewAuth creates an error for credentials that cannot be used or refreshed.
func NewAuth(msg string, err error) *SyncError {
	return &SyncError{
		Code:    ErrAuth,
		Message: msg,
		Err:     err,
	}
}

// NewMalformedTimestamp creates an error for a capture time that does not parse.
func NewMalformedTimestamp(value string, err error) *SyncError {
	return &SyncError{
		Code:    ErrMalformedTimestamp,
		Message: fmt.Sprintf("malformed timestamp %q", value),
		Details: map[string]any{"value": value},
		Err:     err,
	}
}

// NewMissingMetadata creates an error for a photo that carries no EXIF block.
func NewMissingMetadata(name string) *SyncError {
	return &SyncError{
		Code:    ErrMissingMetadata,
		Message: fmt.Sprintf("no embedded metadata in %s", name),
		Details: map[string]any{"name": name},
	}
}

// NewUnsupportedFormat creates an error for a container the codec cannot edit.
func NewUnsupportedFormat(name, mimeType string) *SyncError {
	return &SyncError{
		Code:    ErrUnsupportedFormat,
		Message: fmt.Sprintf("cannot edit metadata of %s (%s)", name, mimeType),
		Details: map[string]any{"name": name, "mime_type": mimeType},
	}
}

// NewUnreadableMetadata creates an error for an EXIF block that exists but
// cannot be parsed for editing.
func NewUnreadableMetadata(name string, err error) *SyncError {
	return &SyncError{
		Code:    ErrUnreadableMetadata,
		Message: fmt.Sprintf("cannot edit the metadata of %s", name),
		Details: map[string]any{"name": name},
		Err:     err,
	}
}

// NewBoundaryNotFound creates an error for a boundary missing from the listing.
func NewBoundaryNotFound(id string, scanned int) *SyncError {
	return &SyncError{
		Code:    ErrBoundaryNotFound,
		Message: fmt.Sprintf("boundary %s not found in the %d newest items; treating all of them as new", id, scanned),
		Details: map[string]any{"boundary_id": id, "scanned": scanned},
	}
}

// NewNothingNew creates the terminal "no new items" condition.
func NewNothingNew(id string) *SyncError {
	return &SyncError{
		Code:    ErrNothingNew,
		Message: "no new items since the last run",
		Details: map[string]any{"boundary_id": id},
	}
}

// NewRemote wraps a failure from the photo service or the network.
func NewRemote(op string, err error) *SyncError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &SyncError{
		Code:    ErrRemote,
		Message: msg,
		Err:     err,
	}
}

// NewInvalidConfig creates an error for a rejected configuration value.
func NewInvalidConfig(msg string) *SyncError {
	return &SyncError{
		Code:    ErrInvalidConfig,
		Message: msg,
	}
}

// NewNotFound creates an error for a ledger record that does not exist.
func NewNotFound(what, id string) *SyncError {
	return &SyncError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", what, id),
		Details: map[string]any{"id": id},
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *SyncError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SyncError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err, or any error it wraps, is a SyncError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SyncError
	for err != nil {
		if !stderrors.As(err, &sErr) {
			return false
		}
		if sErr.Code == code {
			return true
		}
		err = sErr.Err
	}
	return false
}

// CodeOf returns the code of the outermost SyncError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var sErr *SyncError
	if stderrors.As(err, &sErr) {
		return sErr.Code, true
	}
	return "", false
}
