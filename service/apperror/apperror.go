// Package apperror defines the error taxonomy shared by the upstream client,
// the explanation pipeline and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// Internal is the zero value so unclassified errors never leak as caller errors.
	Internal Kind = iota
	InvalidInput
	NotFound
	UpstreamError
	MalformedUpstreamData
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case UpstreamError:
		return "upstream_error"
	case MalformedUpstreamData:
		return "malformed_upstream_data"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with a message prefix.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Invalid(format string, args ...interface{}) *Error {
	return New(InvalidInput, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

func Upstream(err error, format string, args ...interface{}) *Error {
	return Wrap(UpstreamError, err, format, args...)
}

func Malformed(format string, args ...interface{}) *Error {
	return New(MalformedUpstreamData, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code returned to callers.
// MalformedUpstreamData is a contract break on the upstream side, so callers
// see it as a gateway failure.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case UpstreamError, MalformedUpstreamData:
		return http.StatusBadGateway
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable code placed in error response bodies.
func Code(kind Kind) string {
	switch kind {
	case InvalidInput:
		return "BAD_REQUEST"
	case NotFound:
		return "NOT_FOUND"
	case UpstreamError, MalformedUpstreamData:
		return "UPSTREAM_ERROR"
	case RateLimited:
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}

// PublicMessage is the message safe to show callers. Internal and malformed
// upstream details stay in logs.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case MalformedUpstreamData:
		return "upstream returned data in an unexpected format"
	case UpstreamError:
		return "failed to fetch data from upstream"
	case Internal:
		return "internal server error"
	default:
		return e.Message
	}
}

// ErrUnavailable marks an upstream that is reachable but reports itself as
// unavailable. Wrapped in an UpstreamError it is surfaced as 503.
var ErrUnavailable = errors.New("upstream unavailable")

// StatusFor maps err to an HTTP status, distinguishing an unavailable
// upstream from a failed one.
func StatusFor(err error) int {
	kind := KindOf(err)
	if kind == UpstreamError && errors.Is(err, ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	return HTTPStatus(kind)
}
