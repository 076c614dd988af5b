package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeProviderRejected    Code = "PROVIDER_REJECTED"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeInvalidSignature    Code = "INVALID_SIGNATURE"
	CodeUnknownReference    Code = "UNKNOWN_REFERENCE"
	CodeAlreadyProcessed    Code = "ALREADY_PROCESSED"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type metaOpt func(*Metadata)

var (
	retryable   metaOpt = func(m *Metadata) { m.Retryable = true }
	withDetails metaOpt = func(m *Metadata) { m.DetailsAllowed = true }
)

func meta(status int, public string, opts ...metaOpt) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     meta(http.StatusForbidden, "access denied"),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),

	CodeInvalidAmount:       meta(http.StatusBadRequest, "amount must be a positive value with at most two decimals", withDetails),
	CodeInsufficientFunds:   meta(http.StatusPaymentRequired, "insufficient wallet balance", withDetails),
	CodeProviderRejected:    meta(http.StatusBadGateway, "payment provider rejected the request"),
	CodeProviderUnavailable: meta(http.StatusServiceUnavailable, "payment temporarily unavailable, try again", retryable),
	CodeInvalidSignature:    meta(http.StatusUnauthorized, "signature verification failed"),
	CodeUnknownReference:    meta(http.StatusNotFound, "unknown transaction reference"),
	CodeAlreadyProcessed:    meta(http.StatusConflict, "already processed"),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. Message is for operators and, for a few codes,
// for clients; the cause never leaves the process.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.code) + ": " + e.message
	}
	return string(e.code) + ": " + e.message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return false
}
