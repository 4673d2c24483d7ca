package httperror

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/fitpulse/gateway/xhttp/correlation"
	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/ugorji/go/codec"
)

// ManyError identifies many errors from API, keyed by the host that
// produced each one.
type ManyError struct {
	// HTTPStatus contains the HTTP status code that should be used for this error
	HTTPStatus int `json:"-"`

	// Code identifies the particular error condition [for programatic consumers]
	Code string `json:"code,omitempty"`

	// RequestID identifies the request ID
	RequestID string `json:"request_id,omitempty"`

	// Message is an textual description of the error
	Message string `json:"message,omitempty"`

	Errors map[string]*Error `json:"errors,omitempty"`

	// cause is the first original error
	cause error

	lock sync.Mutex
}

func (m *ManyError) Error() string {
	if m == nil {
		return "nil"
	}
	if m.Code != "" {
		if m.RequestID != "" {
			return fmt.Sprintf("request %s: %s: %s", m.RequestID, m.Code, m.Message)
		}
		return fmt.Sprintf("%s: %s", m.Code, m.Message)
	}

	var errs []string
	for _, e := range m.Errors {
		errs = append(errs, e.Error())
	}

	return strings.Join(errs, ";")
}

// CorrelationID implements the Correlator interface,
// and returns request ID
func (m *ManyError) CorrelationID() string {
	return m.RequestID
}

// Cause returns original error
func (m *ManyError) Cause() error {
	return m.cause
}

// NewMany builds new ManyError instance, build message string along the way
func NewMany(status int, code string, msgFormat string, vals ...any) *ManyError {
	return &ManyError{
		HTTPStatus: status,
		Code:       code,
		Message:    fmt.Sprintf(msgFormat, vals...),
		Errors:     make(map[string]*Error),
	}
}

// Add a single error to ManyError
func (m *ManyError) Add(key string, err error) *ManyError {
	if m == nil {
		m = new(ManyError)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.Errors == nil {
		m.Errors = make(map[string]*Error)
	}
	if m.cause == nil {
		m.cause = err
	}
	if gErr, ok := err.(*Error); ok {
		m.Errors[key] = gErr
	} else {
		m.Errors[key] = &Error{
			Code:    CodeUnexpected,
			Message: err.Error(),
			cause:   err,
		}
	}
	return m
}

// HasErrors check if ManyError has any nested error associated with it.
func (m *ManyError) HasErrors() bool {
	return len(m.Errors) > 0
}

// WriteHTTPResponse implements how to serialize this error into a HTTP Response
func (m *ManyError) WriteHTTPResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(header.ContentType, header.ApplicationJSON)
	w.WriteHeader(m.HTTPStatus)
	if m.RequestID == "" {
		m.RequestID = correlation.ID(r.Context())
	}
	_ = codec.NewEncoder(w, encoderHandle(shouldPrettyPrint(r))).Encode(m)
}
