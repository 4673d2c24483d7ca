// Package proxy forwards client requests to the configured backend
// services, keyed by route prefix. Identity headers injected by the
// resolution filter ride through unchanged.
package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/effective-security/metrics"
	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/gateway"
	"github.com/fitpulse/gateway/xhttp/correlation"
	"github.com/fitpulse/gateway/xhttp/httperror"
	"github.com/fitpulse/gateway/xhttp/marshal"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/gateway", "proxy")

// ServiceName provides the Service Name for this package
const ServiceName = "proxy"

var keyForUpstreamErrors = "proxy_upstream_errors"

// Service proxies requests to the configured upstreams
type Service struct {
	routes []*route
}

type route struct {
	upstream gateway.Upstream
	proxy    *httputil.ReverseProxy
}

// New returns a proxy Service for the given upstreams
func New(upstreams []gateway.Upstream) (*Service, error) {
	svc := &Service{}
	for _, up := range upstreams {
		if up.PathPrefix == "" || !strings.HasPrefix(up.PathPrefix, "/") {
			return nil, errors.Errorf("invalid path prefix for upstream %q: %q", up.Name, up.PathPrefix)
		}
		target, err := url.Parse(up.Endpoint)
		if err != nil || target.Host == "" {
			return nil, errors.Errorf("invalid endpoint for upstream %q: %q", up.Name, up.Endpoint)
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.ErrorLog = xlog.Stderr
		if up.ResponseHeaderTimeout > 0 {
			rp.Transport = &http.Transport{
				ResponseHeaderTimeout: up.ResponseHeaderTimeout,
			}
		}
		name := up.Name
		rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			metrics.IncrCounter(keyForUpstreamErrors, 1,
				metrics.Tag{Name: "upstream", Value: name})
			logger.ContextKV(r.Context(), xlog.WARNING,
				"upstream", name,
				"path", r.URL.Path,
				"ctx", correlation.ID(r.Context()),
				"err", err.Error())
			marshal.WriteJSON(w, r, httperror.BadGateway("upstream %q is not available", name))
		}

		svc.routes = append(svc.routes, &route{
			upstream: up,
			proxy:    rp,
		})
	}
	return svc, nil
}

// Name returns the service name
func (s *Service) Name() string {
	return ServiceName
}

// IsReady indicates that the service is ready to serve its end-points
func (s *Service) IsReady() bool {
	return true
}

// Close signals the service to stop
func (s *Service) Close() {
}

// Register adds the proxy routes
func (s *Service) Register(r gateway.Router) {
	for _, rt := range s.routes {
		handler := rt.handle
		r.HandleAll(rt.upstream.PathPrefix, handler)
		r.HandleAll(rt.upstream.PathPrefix+"/*path", handler)
	}
}

func (rt *route) handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, gateway.MaxRequestSize)
	rt.proxy.ServeHTTP(w, r)
}
