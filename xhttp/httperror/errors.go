// Package httperror provides the structured JSON error body returned by
// the gateway: HTTP status, error code, message and correlation ID.
package httperror

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"

	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/x/slices"
	"github.com/fitpulse/gateway/xhttp/correlation"
	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/ugorji/go/codec"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/xhttp", "httperror")

// Error represents a single error from API.
type Error struct {
	// HTTPStatus contains the HTTP status code that should be used for this error
	HTTPStatus int `json:"-"`

	// Code identifies the particular error condition [for programatic consumers]
	Code string `json:"code"`

	// RequestID identifies the request ID
	RequestID string `json:"request_id,omitempty"`

	// Message is an textual description of the error
	Message string `json:"message"`

	// cause is the original error
	cause error
}

// New returns Error instance, building the message string along the way
func New(status int, code string, msgFormat string, vals ...any) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    fmt.Sprintf(msgFormat, vals...),
	}
}

// WithCause adds the cause error
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// CorrelationID implements the Correlator interface,
// and returns request ID
func (e *Error) CorrelationID() string {
	return e.RequestID
}

// Error implements the standard error interface
func (e *Error) Error() string {
	if e == nil {
		return "nil"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("request %s: %s: %s", e.RequestID, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Cause returns original error
func (e *Error) Cause() error {
	return e.cause
}

// InvalidParam returns Error instance with InvalidParam code
func InvalidParam(msgFormat string, vals ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidParam, msgFormat, vals...)
}

// InvalidJSON returns Error instance with InvalidJSON code
func InvalidJSON(msgFormat string, vals ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidJSON, msgFormat, vals...)
}

// InvalidRequest returns Error instance with InvalidRequest code
func InvalidRequest(msgFormat string, vals ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, msgFormat, vals...)
}

// Malformed returns Error instance with Malformed code
func Malformed(msgFormat string, vals ...any) *Error {
	return New(http.StatusBadRequest, CodeMalformed, msgFormat, vals...)
}

// NotFound returns Error instance with NotFound code
func NotFound(msgFormat string, vals ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, msgFormat, vals...)
}

// NotReady returns Error instance with NotReady code
func NotReady(msgFormat string, vals ...any) *Error {
	return New(http.StatusServiceUnavailable, CodeNotReady, msgFormat, vals...)
}

// RateLimitExceeded returns Error instance with RateLimitExceeded code
func RateLimitExceeded(msgFormat string, vals ...any) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, msgFormat, vals...)
}

// Unexpected returns Error instance with Unexpected code
func Unexpected(msgFormat string, vals ...any) *Error {
	return New(http.StatusInternalServerError, CodeUnexpected, msgFormat, vals...)
}

// Forbidden returns Error instance with Forbidden code
func Forbidden(msgFormat string, vals ...any) *Error {
	return New(http.StatusForbidden, CodeForbidden, msgFormat, vals...)
}

// Unauthorized returns Error instance with Unauthorized code
func Unauthorized(msgFormat string, vals ...any) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, msgFormat, vals...)
}

// BadGateway returns Error instance with BadGateway code
func BadGateway(msgFormat string, vals ...any) *Error {
	return New(http.StatusBadGateway, CodeBadGateway, msgFormat, vals...)
}

// WriteHTTPResponse implements how to serialize this error into a HTTP Response.
// If the encoder itself fails, a hand-built minimal payload is written instead,
// so the error path cannot fail silently.
func (e *Error) WriteHTTPResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(header.ContentType, header.ApplicationJSON)
	w.WriteHeader(e.HTTPStatus)
	if e.RequestID == "" {
		e.RequestID = correlation.ID(r.Context())
	}
	if err := codec.NewEncoder(w, encoderHandle(shouldPrettyPrint(r))).Encode(e); err != nil {
		logger.ContextKV(r.Context(), xlog.ERROR, "reason", "encode", "err", err.Error())
		fmt.Fprintf(w, `{"code":%q,"message":"failed to serialize error"}`, e.Code)
	}
}

// IsTimeout returns true for timeout error
func IsTimeout(err error) bool {
	str := err.Error()
	return goerrors.Is(err, context.DeadlineExceeded) ||
		goerrors.Is(err, context.Canceled) ||
		slices.StringContainsOneOf(str, timeoutErrors)
}

var timeoutErrors = []string{"timeout", "deadline"}

// Status returns HTTP status from error
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if goerrors.As(err, &e) {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
