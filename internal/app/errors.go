package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNoCV means neither a bundled nor an active uploaded CV exists.
	ErrNoCV = fmt.Errorf("no cv available: %w", ErrNotFound)
	// ErrCVFileMissing means a CV was resolved but its bytes are gone.
	ErrCVFileMissing = fmt.Errorf("cv file missing: %w", ErrNotFound)

	// ErrUnauthorized is returned for wrong admin credentials. It never
	// says which half was wrong.
	ErrUnauthorized  = errors.New("invalid credentials")
	ErrAdminDisabled = errors.New("admin login not configured")

	ErrInvalidUpload       = errors.New("invalid PDF file")
	ErrUnsupportedFileType = errors.New("only PDF files are allowed")
	ErrFileTooLarge        = errors.New("file too large")
)

// FieldIssue is one rejected input field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a submission, in field order.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Field+": "+is.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields maps each invalid field to its reason.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Issues))
	for _, is := range e.Issues {
		out[is.Field] = is.Message
	}
	return out
}

func (e *ValidationError) add(field, msg string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Message: msg})
}

// StorageError wraps a persistence or blob failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// NotificationError wraps a failed best-effort notification. It is only
// ever logged.
type NotificationError struct {
	ContactID string
	Err       error
}

func (e *NotificationError) Error() string {
	return "notify contact " + e.ContactID + ": " + e.Err.Error()
}
func (e *NotificationError) Unwrap() error { return e.Err }
