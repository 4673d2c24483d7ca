package identity

import (
	"context"
	"net/http"

	"github.com/fitpulse/gateway/x/netutil"
)

type contextKey int

const (
	keyContext contextKey = iota
)

// RequestContext represents user contextual information about a request
// being processed by the server; it includes identity and the client IP.
type RequestContext struct {
	identity Identity
	clientIP string
}

// NewRequestContext creates a request context with a specific identity.
func NewRequestContext(id Identity) *RequestContext {
	return &RequestContext{
		identity: id,
	}
}

// WithClientIP sets the client IP on the request context
func (c *RequestContext) WithClientIP(ip string) *RequestContext {
	c.clientIP = ip
	return c
}

// Identity returns request's identity
func (c *RequestContext) Identity() Identity {
	return c.identity
}

// ClientIP returns request's IP
func (c *RequestContext) ClientIP() string {
	return c.clientIP
}

var guestIdentity = NewIdentity(GuestRoleName, "", nil, nil, "")

// GuestIdentity returns the identity used when no provider matched the request
func GuestIdentity() Identity {
	return guestIdentity
}

// FromContext extracts the RequestContext stored inside a go context.
// Returns a guest context if no such value exists.
func FromContext(ctx context.Context) *RequestContext {
	ret, _ := ctx.Value(keyContext).(*RequestContext)
	if ret == nil {
		ret = &RequestContext{
			identity: guestIdentity,
		}
	}
	return ret
}

// AddToContext returns a new golang context that adds `rq` as the request context.
func AddToContext(ctx context.Context, rq *RequestContext) context.Context {
	return context.WithValue(ctx, keyContext, rq)
}

// FromRequest returns the full context associated with this http request.
func FromRequest(r *http.Request) *RequestContext {
	return FromContext(r.Context())
}

// WithTestIdentity is used in unit tests to set HTTP request identity
func WithTestIdentity(r *http.Request, identity Identity) *http.Request {
	ipaddr, _ := netutil.GetLocalIP()
	ctx := &RequestContext{
		identity: identity,
		clientIP: ipaddr,
	}
	c := context.WithValue(r.Context(), keyContext, ctx)
	return r.WithContext(c)
}
