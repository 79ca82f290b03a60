package stackexchange

import (
	"errors"
	"fmt"
)

// Kind classifies a client error into one of the closed set of
// categories the tool layer can act on. The category decides both
// presentation and retry behavior.
type Kind string

const (
	KindValidation Kind = "validation"
	KindRateLimit  Kind = "rate_limit"
	KindAuth       Kind = "authentication"
	KindTransient  Kind = "transient"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Category sentinels for errors.Is checks. Matching is by Kind only,
// so `errors.Is(err, ErrRateLimit)` works regardless of message.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrTransient  = &Error{Kind: KindTransient}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrInternal   = &Error{Kind: KindInternal}
)

// Error is the categorized error returned by the client and queue.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches by category so sentinel comparisons work.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsRetryable reports whether the queue may re-attempt the request.
// Rate limiting and transient failures (network, 5xx) are retryable;
// validation, authentication and not-found errors never are, since
// repeating the identical request cannot change the outcome.
func IsRetryable(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == KindRateLimit || ce.Kind == KindTransient
}
