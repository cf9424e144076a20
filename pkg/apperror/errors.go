package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for propagation policy purposes.
type Kind int

const (
	// KindValidation covers missing or malformed input. Always recoverable,
	// surfaced verbatim to the caller.
	KindValidation Kind = iota
	// KindNotFound covers lookups of documents that do not exist.
	KindNotFound
	// KindConflict covers illegal state transitions and already-linked
	// documents. The caller must re-fetch and retry with corrected intent.
	KindConflict
	// KindExternal covers tax-authority collaborator failures and timeouts.
	KindExternal
	// KindIntegrity covers invariant violations. Fatal to the operation,
	// reported generically to the caller, logged in full server-side.
	KindIntegrity
)

// Error is a typed application error carrying a classification and a
// human-readable reason string.
type Error struct {
	Kind    Kind   `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// External wraps a collaborator failure. The wrapped error keeps transport
// detail for logs while Message stays presentable.
func External(message string, err error) *Error {
	return &Error{Kind: KindExternal, Message: message, Err: err}
}

// Integrity wraps an invariant violation. Callers receive a generic message;
// the wrapped error carries the detail for server-side logging.
func Integrity(detail string, err error) *Error {
	if err == nil {
		err = errors.New("invariant violated")
	}
	return &Error{Kind: KindIntegrity, Message: "internal consistency error", Err: fmt.Errorf("%s: %w", detail, err)}
}

// As extracts an *Error from an error chain, if present.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	if appErr, ok := As(err); ok {
		return appErr.Kind == kind
	}
	return false
}
