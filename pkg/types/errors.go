package types

import (
	"errors"
	"fmt"
)

// ErrorKind groups registry errors by how a caller should react to them
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindSecurity
	KindConflict
	KindAuthorization
	KindNotFound
	KindStorage
	KindScanTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSecurity:
		return "security"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	case KindScanTimeout:
		return "scan_timeout"
	default:
		return "internal"
	}
}

// Retryable reports whether the same request may succeed if repeated later
func (k ErrorKind) Retryable() bool {
	return k == KindStorage || k == KindScanTimeout
}

// Error is a typed registry error. Two errors match under errors.Is when
// their codes are equal, so wrapped instances still match the sentinels below.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the error with a more specific message
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy of the error carrying a cause
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

var (
	ErrInvalidInput = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrNoChange     = &Error{Kind: KindValidation, Code: "no_change", Message: "status is unchanged"}

	ErrFileTooLarge     = &Error{Kind: KindSecurity, Code: "file_too_large", Message: "file exceeds the maximum upload size"}
	ErrUnsupportedType  = &Error{Kind: KindSecurity, Code: "unsupported_type", Message: "file type is not allowed"}
	ErrUnsafeFilename   = &Error{Kind: KindSecurity, Code: "unsafe_filename", Message: "filename contains unsafe characters"}
	ErrScanFailed       = &Error{Kind: KindSecurity, Code: "scan_failed", Message: "content scan failed"}
	ErrSecurityRejected = &Error{Kind: KindSecurity, Code: "security_rejected", Message: "artifact failed the security scan"}
	ErrDownloadPending  = &Error{Kind: KindSecurity, Code: "scan_in_progress", Message: "download blocked: scan in progress"}
	ErrDownloadInfected = &Error{Kind: KindSecurity, Code: "malware_detected", Message: "download blocked: malware detected"}
	ErrScanTimeout      = &Error{Kind: KindScanTimeout, Code: "scan_timeout", Message: "content scan timed out"}
	ErrNameTaken        = &Error{Kind: KindConflict, Code: "name_taken", Message: "package name is already taken"}
	ErrVersionExists    = &Error{Kind: KindConflict, Code: "version_exists", Message: "version already exists"}
	ErrForbidden        = &Error{Kind: KindAuthorization, Code: "forbidden", Message: "insufficient permissions"}
	ErrUnauthenticated  = &Error{Kind: KindAuthorization, Code: "unauthenticated", Message: "authentication required"}
	ErrNotFound         = &Error{Kind: KindNotFound, Code: "not_found", Message: "not found"}
	ErrStorage          = &Error{Kind: KindStorage, Code: "storage_error", Message: "storage unavailable"}
)

// KindOf returns the kind of a registry error, or KindInternal for anything else
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of a registry error, or "internal_error"
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// IsDownloadBlocked reports whether err is one of the download gating errors
func IsDownloadBlocked(err error) bool {
	return errors.Is(err, ErrDownloadPending) || errors.Is(err, ErrDownloadInfected)
}
