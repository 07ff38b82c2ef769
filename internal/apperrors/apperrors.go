// internal/apperrors/apperrors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between aborting a cycle,
// skipping an item, or reporting an authentication problem.
type Kind int

const (
	// KindAuthentication marks a missing or rejected credential. Fatal to
	// the whole refresh cycle; never retried.
	KindAuthentication Kind = iota + 1
	// KindGateway marks any other non-success response from the platform,
	// including rate limiting and network failures.
	KindGateway
	// KindNotFound marks an absent resource: a repository with no releases,
	// or a repository id missing from the store.
	KindNotFound
	// KindValidation marks a response payload that did not match the
	// expected schema.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindGateway:
		return "gateway"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps cause with a kind and operation name. cause may be nil.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the kind of err, or 0 when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }
func IsGateway(err error) bool        { return KindOf(err) == KindGateway }
func IsNotFound(err error) bool       { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool     { return KindOf(err) == KindValidation }
