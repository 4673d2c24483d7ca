// Package correlation assigns a short correlation ID to every request
// and exposes it via the go context model, so that log lines and error
// responses across the gateway and its downstream calls can be matched up.
package correlation

import (
	"context"
	"net/http"

	"github.com/effective-security/xlog"
	"github.com/effective-security/xpki/certutil"
	"github.com/fitpulse/gateway/x/slices"
	"github.com/fitpulse/gateway/xhttp/header"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/xhttp", "correlation")

type contextKey int

const (
	keyContext contextKey = iota
)

// IDSize specifies a size in characters for the correlation ID
const IDSize = 12

// Correlator interface allows to provide request ID
type Correlator interface {
	CorrelationID() string
}

// RequestContext represents correlation information about a request
// being processed by the server.
type RequestContext struct {
	ID string
}

// NewHandler returns a handler that will extract/add the correlationID from the request
// and stash it away in the request context for later handlers to use.
func NewHandler(delegate http.Handler) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		var rctx *RequestContext
		ctx := r.Context()
		v := ctx.Value(keyContext)
		if v == nil {
			rctx = &RequestContext{
				ID: correlationID(r),
			}
			r = r.WithContext(context.WithValue(ctx, keyContext, rctx))
		} else {
			rctx = v.(*RequestContext)
		}

		// add correlationID to logs as "ctx"
		r = r.WithContext(xlog.ContextWithKV(r.Context(), "ctx", rctx.ID))

		w.Header().Set(header.XCorrelationID, rctx.ID)
		delegate.ServeHTTP(w, r)
	}
	return http.HandlerFunc(h)
}

// correlationID will find or create a requestID for this http request.
func correlationID(req *http.Request) string {
	corID := ID(req.Context())
	if corID == "" {
		incomingID := req.Header.Get(header.XCorrelationID)
		if incomingID == "" {
			incomingID = req.Header.Get("X-Request-ID")
		}

		if incomingID != "" {
			corID = slices.StringUpto(incomingID, IDSize)
		} else {
			corID = certutil.RandomString(IDSize)
		}

		path := ""
		if req.URL != nil {
			path = req.URL.Path
		}
		logger.KV(xlog.DEBUG, "ctx", corID, "incoming_ctx", incomingID, "path", path)
	}
	return corID
}

// Value returns correlation RequestContext from the context
func Value(ctx context.Context) *RequestContext {
	v := ctx.Value(keyContext)
	if r, ok := v.(*RequestContext); ok {
		return r
	}
	return nil
}

// ID returns correlation ID from the context
func ID(ctx context.Context) string {
	corID := ""
	v := Value(ctx)
	if v != nil {
		corID = v.ID
	}
	return corID
}

// WithID returns context with Correlation ID,
// if the context already has Correlation ID,
// the original is returned
func WithID(ctx context.Context) context.Context {
	v := ctx.Value(keyContext)
	if v == nil {
		rctx := &RequestContext{
			ID: certutil.RandomString(IDSize),
		}
		ctx = context.WithValue(ctx, keyContext, rctx)
		ctx = xlog.ContextWithKV(ctx, "ctx", rctx.ID)
	}
	return ctx
}

// NewFromContext returns new Background context with Correlation ID
// from the incoming context; used for detached tasks that must outlive
// the request that spawned them.
func NewFromContext(ctx context.Context) context.Context {
	cid := ID(ctx)
	if cid == "" {
		cid = certutil.RandomString(IDSize)
	}
	rctx := &RequestContext{
		ID: cid,
	}
	nctx := context.WithValue(context.Background(), keyContext, rctx)
	return xlog.ContextWithKV(nctx, "ctx", rctx.ID)
}
