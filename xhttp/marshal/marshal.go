// Package marshal writes API responses as JSON, giving error types
// full control over their own serialization.
package marshal

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	goErrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/fitpulse/gateway/xhttp/httperror"
	"github.com/ugorji/go/codec"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway", "xhttp")

// WriteHTTPResponse is for types to implement this interface to get full control
// over how they are written out as a http response
type WriteHTTPResponse interface {
	WriteHTTPResponse(w http.ResponseWriter, r *http.Request)
}

// WriteJSON will serialize the supplied body parameter as a http response.
// If the body value implements the WriteHTTPResponse interface,
// then that will be called to have it do the response generation.
// If body implements error, it is mapped to a structured error response.
// Otherwise body is assumed to be a successful response, serialized
// and written as a json response with a 200 status code.
//
// Multiple body parameters can be supplied, in which case the first
// non-nil one will be used. This is useful as it allows you to do
//
//	x, err := doSomething()
//	marshal.WriteJSON(w, r, err, x)
//
// and if there was an error, that's what will get returned.
func WriteJSON(w http.ResponseWriter, r *http.Request, bodies ...any) {
	var body any
	for i := range bodies {
		if bodies[i] != nil {
			body = bodies[i]
			break
		}
	}

	switch bv := body.(type) {
	case WriteHTTPResponse:
		// httperror.Error impls WriteHTTPResponse, so will take this path and do its thing
		bv.WriteHTTPResponse(w, r)
		logHTTPError(bv, r)
		return

	case error:
		var resp WriteHTTPResponse
		if goErrors.As(bv, &resp) {
			resp.WriteHTTPResponse(w, r)
			logHTTPError(bv, r)
			return
		}
		WriteJSON(w, r, httperror.Unexpected("%s", bv.Error()).WithCause(bv))
		return

	default:
		w.Header().Set(header.ContentType, header.ApplicationJSON)
		var out io.Writer = w
		if r != nil && strings.Contains(r.Header.Get(header.AcceptEncoding), header.Gzip) {
			w.Header().Set(header.ContentEncoding, header.Gzip)
			gz := gzip.NewWriter(out)
			out = gz
			defer gz.Close()
		}
		bw := bufio.NewWriter(out)
		if err := NewEncoder(bw, r).Encode(body); err != nil {
			logger.ContextKV(r.Context(), xlog.WARNING, "reason", "encode", "type", body, "err", err.Error())
		}
		bw.Flush()
	}
}

func logHTTPError(bv any, r *http.Request) {
	var he *httperror.Error
	if err, ok := bv.(error); ok && goErrors.As(err, &he) {
		if he.HTTPStatus == http.StatusNotFound {
			return
		}
		ctx := r.Context()
		sv := xlog.INFO
		typ := "API_ERROR"
		if he.HTTPStatus >= 500 {
			sv = xlog.ERROR
			typ = "INTERNAL_ERROR"
		}

		if cause := he.Cause(); cause != nil {
			logger.ContextKV(ctx, sv, "err", cause.Error())
		}

		logger.ContextKV(ctx, sv,
			"type", typ,
			"path", r.URL.Path,
			"status", he.HTTPStatus,
			"code", he.Code,
			"msg", he.Message,
			"agent", r.UserAgent(),
		)
	}
}

// WritePlainJSON will serialize the supplied body parameter as a http response.
func WritePlainJSON(w http.ResponseWriter, statusCode int, body any, printSetting PrettyPrintSetting) {
	w.Header().Set(header.ContentType, header.ApplicationJSON)
	w.WriteHeader(statusCode)

	_ = codec.NewEncoder(w, encoderHandle(printSetting)).Encode(body)
}

// NewRequest returns http.Request with the supplied body serialized to JSON,
// unless it's already a reader, bytes or string.
func NewRequest(method string, url string, req any) (*http.Request, error) {
	var body io.Reader

	switch val := req.(type) {
	case io.Reader:
		body = val
	case []byte:
		body = bytes.NewReader(val)
	case string:
		body = strings.NewReader(val)
	default:
		js, err := json.Marshal(req)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		body = bytes.NewReader(js)
	}

	return http.NewRequest(method, url, body)
}
