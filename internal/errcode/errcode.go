// Package errcode defines the error taxonomy shared by services, clients,
// and the HTTP layer. Errors carry a stable machine-readable code plus an
// optional details payload that surfaces in API responses.
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class. Codes are stable API surface.
type Code string

const (
	BadRequest        Code = "BAD_REQUEST"
	MissingFields     Code = "MISSING_FIELDS"
	InvalidBBox       Code = "INVALID_BBOX"
	InvalidCoords     Code = "INVALID_COORDS"
	InvalidCorridor   Code = "INVALID_CORRIDOR"
	PayloadTooLarge   Code = "PAYLOAD_TOO_LARGE"
	Unauthorized      Code = "UNAUTHORIZED"
	Forbidden         Code = "FORBIDDEN"
	NotFound          Code = "NOT_FOUND"
	RateLimited       Code = "RATE_LIMITED"
	GeocodeNoResults  Code = "GEOCODE_NO_RESULTS"
	GeocodeError      Code = "GEOCODE_ERROR"
	ORSRateLimit      Code = "ORS_RATE_LIMIT"
	RouteNotFound     Code = "ROUTE_NOT_FOUND"
	CorridorBuildFail Code = "CORRIDOR_BUILD_FAILED"
	QueryFailed       Code = "QUERY_FAILED"
	FeedFetchError    Code = "FEED_FETCH_ERROR"
	FeedParseError    Code = "FEED_PARSE_ERROR"
	Internal          Code = "INTERNAL_ERROR"
)

// Error is a classified error. Message is safe to show to callers; the
// wrapped cause is for logs only.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause
// yields a plain classified error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails returns a copy carrying a details payload for the API envelope.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// CodeOf extracts the code from err, unwrapping as needed. Unclassified
// errors report INTERNAL_ERROR.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}

// MessageOf returns the caller-safe message for err. Unclassified errors
// get a generic message so internals never leak.
func MessageOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "internal server error"
}

// DetailsOf returns the details payload, if any.
func DetailsOf(err error) any {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}

// HTTPStatus maps a code to the status the HTTP layer responds with.
func HTTPStatus(code Code) int {
	switch code {
	case BadRequest, MissingFields, InvalidBBox, InvalidCoords, InvalidCorridor:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound, GeocodeNoResults, RouteNotFound:
		return http.StatusNotFound
	case RateLimited, ORSRateLimit:
		return http.StatusTooManyRequests
	case GeocodeError, FeedFetchError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
