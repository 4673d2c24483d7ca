// Package resolve provides the identity resolution filter: it decides
// the caller identity for every request, injects it into the identity
// header for the downstream services, and keeps the user service in
// sync without ever blocking the request path.
package resolve

import (
	"context"
	"net/http"
	"strings"

	"github.com/effective-security/xlog"

	"github.com/fitpulse/gateway/gateway/roles"
	"github.com/fitpulse/gateway/xhttp/correlation"
	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/fitpulse/gateway/xhttp/identity"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/gateway", "resolve")

// ServiceRoleName is the role assigned to trusted service-to-service calls
const ServiceRoleName = "service"

// Config specifies the identity resolution filter behavior
type Config struct {
	// IdentityHeader is the header carrying the resolved identity to the
	// downstream services; an inbound value takes priority over the token
	IdentityHeader string `json:"identity_header" yaml:"identity_header"`

	// ServiceHeader marks service-to-service calls that bypass resolution
	ServiceHeader string `json:"service_header" yaml:"service_header"`

	// TrustServiceHeader enables the service bypass. The header is not
	// authenticated, so this must only be enabled on deployments where
	// the gateway is unreachable from outside the service network.
	TrustServiceHeader bool `json:"trust_service_header" yaml:"trust_service_header"`

	// PublicPaths lists path prefixes open to anonymous callers,
	// e.g. /v1/status, /api/content/*
	PublicPaths []string `json:"public_paths" yaml:"public_paths"`
}

// Filter resolves the caller identity per request
type Filter struct {
	cfg      Config
	provider roles.IdentityProvider
	sync     Syncer
}

// Syncer receives the profile of every token-authenticated caller on a
// detached context; implementations must be safe for concurrent use
type Syncer func(ctx context.Context, id identity.Identity)

// NewFilter returns the identity resolution filter.
// sync may be nil when user synchronization is disabled.
func NewFilter(cfg *Config, provider roles.IdentityProvider, sync Syncer) *Filter {
	f := &Filter{
		cfg:      *cfg,
		provider: provider,
		sync:     sync,
	}
	if f.cfg.IdentityHeader == "" {
		f.cfg.IdentityHeader = header.XUserID
	}
	if f.cfg.ServiceHeader == "" {
		f.cfg.ServiceHeader = header.XServiceID
	}
	return f
}

// NewHandler returns a middleware that resolves the caller identity,
// stores it in the request context and injects the identity header.
func (f *Filter) NewHandler(delegate http.Handler) http.Handler {
	h := func(w http.ResponseWriter, r *http.Request) {
		if svc := r.Header.Get(f.cfg.ServiceHeader); svc != "" {
			if f.cfg.TrustServiceHeader {
				// the bypass header is asserted, not authenticated
				logger.ContextKV(r.Context(), xlog.WARNING,
					"reason", "service_bypass",
					"service", svc,
					"path", r.URL.Path)
				r = withIdentity(r, identity.NewIdentity(ServiceRoleName, svc, nil, nil, ""))
				delegate.ServeHTTP(w, r)
				return
			}
			// not trusted: drop it so downstreams can't be spoofed
			r.Header.Del(f.cfg.ServiceHeader)
		}

		id := f.resolve(r)
		if id.Subject() != "" {
			r.Header.Set(f.cfg.IdentityHeader, id.Subject())
		} else {
			r.Header.Del(f.cfg.IdentityHeader)
		}

		r = withIdentity(r, id)
		delegate.ServeHTTP(w, r)
	}
	return http.HandlerFunc(h)
}

// resolve picks the identity source in priority order:
// inbound identity header, token subject, anonymous on public paths.
func (f *Filter) resolve(r *http.Request) identity.Identity {
	var tokenID identity.Identity
	if f.provider.ApplicableForRequest(r) {
		tokenID = f.provider.IdentityFromRequest(r)
		if f.sync != nil && tokenID.Subject() != "" {
			// detached: registration must never block or fail the request
			ctx := correlation.NewFromContext(r.Context())
			go f.sync(ctx, tokenID)
		}
	}

	if hdr := r.Header.Get(f.cfg.IdentityHeader); hdr != "" {
		if tokenID != nil && tokenID.Subject() == hdr {
			return tokenID
		}
		return identity.NewIdentity(roles.DefaultAuthenticatedRole, hdr, nil, nil, "")
	}

	if tokenID != nil && tokenID.Subject() != "" {
		return tokenID
	}

	if f.isPublicPath(r.URL.Path) {
		return identity.NewIdentity(identity.GuestRoleName, identity.Anonymous, nil, nil, "")
	}

	return identity.GuestIdentity()
}

func (f *Filter) isPublicPath(p string) bool {
	for _, pub := range f.cfg.PublicPaths {
		if pat, ok := strings.CutSuffix(pub, "/*"); ok {
			if p == pat || strings.HasPrefix(p, pat+"/") {
				return true
			}
		} else if p == pub {
			return true
		}
	}
	return false
}

func withIdentity(r *http.Request, id identity.Identity) *http.Request {
	rctx := identity.NewRequestContext(id).
		WithClientIP(identity.ClientIPFromRequest(r))
	ctx := identity.AddToContext(r.Context(), rctx)
	if role := id.Role(); role != identity.GuestRoleName {
		ctx = xlog.ContextWithKV(ctx,
			"user", id.Subject(),
			"role", role)
	}
	return r.WithContext(ctx)
}
