// Package errs defines the error taxonomy shared by every snapdoc component.
//
// Sentinel errors cover conditions callers branch on with errors.Is;
// structured error types carry enough context for diagnostics and are
// matched with errors.As. All errors propagate to the caller uncaught
// except backup failures (logged) and unparsable historical snapshots
// during history traversal (skipped with a warning).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrLockTimeout is returned when the advisory lock could not be
	// acquired within the configured retry budget. Callers may retry the
	// whole operation or abort.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrVersionConflict is returned when an optimistic write is rejected
	// because the medium's current version token no longer matches the one
	// supplied by the writer. The caller should re-read and retry.
	ErrVersionConflict = errors.New("snapshot version conflict")

	// ErrNotFound is returned when a collection or record id does not
	// exist for an update or delete.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity is returned when the checksum recomputed after
	// decryption does not match the checksum stored in the envelope.
	ErrIntegrity = errors.New("integrity checksum mismatch")
)

// ValidationError reports a record that failed required-field, type, or
// schema checks, or an attempt to mutate a protected field.
type ValidationError struct {
	Collection string
	Field      string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s.%s: %s", e.Collection, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Collection, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FormatError reports a codec parse or serialize failure.
type FormatError struct {
	Codec string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s codec: %v", e.Codec, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormat reports whether err is (or wraps) a FormatError.
func IsFormat(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// StorageError reports an I/O or medium-level failure underneath the
// engine. The wrapped error preserves the driver's original condition.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// NotFoundf wraps ErrNotFound with a formatted description so callers can
// still match with errors.Is(err, ErrNotFound).
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}
