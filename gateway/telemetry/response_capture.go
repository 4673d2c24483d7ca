// Package telemetry provides the request logging and metrics middleware
// of the gateway HTTP pipeline.
package telemetry

import (
	"bufio"
	"net"
	"net/http"

	"github.com/pkg/errors"
)

// ResponseCapture wraps a http.ResponseWriter and records the status
// code and body size written through it.
type ResponseCapture struct {
	http.ResponseWriter
	statusCode int
	bodySize   uint64
}

// NewResponseCapture returns an instance of ResponseCapture
func NewResponseCapture(w http.ResponseWriter) *ResponseCapture {
	return &ResponseCapture{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// StatusCode returns the response status code
func (rc *ResponseCapture) StatusCode() int {
	return rc.statusCode
}

// BodySize returns the number of body bytes written
func (rc *ResponseCapture) BodySize() uint64 {
	return rc.bodySize
}

// WriteHeader implements the http.ResponseWriter interface
func (rc *ResponseCapture) WriteHeader(status int) {
	rc.statusCode = status
	rc.ResponseWriter.WriteHeader(status)
}

// Write implements the http.ResponseWriter interface
func (rc *ResponseCapture) Write(b []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(b)
	rc.bodySize += uint64(n)
	return n, err
}

// Flush implements the http.Flusher interface
func (rc *ResponseCapture) Flush() {
	if f, ok := rc.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements the http.Hijacker interface, needed for
// websocket-style upgrades through the proxy.
func (rc *ResponseCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rc.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}
