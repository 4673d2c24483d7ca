package gateway

import (
	"os"
	"strings"
	"time"

	"github.com/fitpulse/gateway/gateway/authz"
	"github.com/fitpulse/gateway/gateway/resolve"
	"github.com/fitpulse/gateway/gateway/roles"
	"github.com/fitpulse/gateway/pkg/cache"
	"github.com/fitpulse/gateway/pkg/probe"
	"github.com/fitpulse/gateway/pkg/userclient"
)

// Config provides the gateway configuration
type Config struct {
	// Server provides the HTTP server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Upstreams provides the list of proxied backend services
	Upstreams []Upstream `json:"upstreams,omitempty" yaml:"upstreams,omitempty"`

	// Roles provides the role mapping configuration
	Roles roles.Config `json:"roles" yaml:"roles"`

	// Identity provides the identity resolution configuration
	Identity resolve.Config `json:"identity" yaml:"identity"`

	// Authz provides the path access configuration
	Authz authz.Config `json:"authz" yaml:"authz"`

	// RateLimit contains configuration for the rate limiter
	RateLimit *RateLimit `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Probe provides the downstream health prober configuration
	Probe probe.Config `json:"probe" yaml:"probe"`

	// Warmup provides the scheduled warm-up configuration
	Warmup probe.WarmupConfig `json:"warmup" yaml:"warmup"`

	// UserService provides the User Service client configuration
	UserService userclient.Config `json:"user_service" yaml:"user_service"`

	// Cache provides the shared cache configuration
	Cache cache.Config `json:"cache" yaml:"cache"`

	// Metrics provides the metrics publisher configuration
	Metrics Metrics `json:"metrics" yaml:"metrics"`
}

// Metrics provides the metrics publisher configuration
type Metrics struct {
	// Provider specifies the metrics sink: prometheus|inmem
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Disabled specifies if the metrics are disabled
	Disabled *bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Prefix specifies the global prefix for emitted metrics
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// PrometheusAddr specifies the bind address for the prometheus scrape end-point
	PrometheusAddr string `json:"prometheus_addr,omitempty" yaml:"prometheus_addr,omitempty"`
}

// GetDisabled specifies if the metrics are disabled
func (c *Metrics) GetDisabled() bool {
	return c != nil && c.Disabled != nil && *c.Disabled
}

// ServerConfig provides the HTTP server configuration
type ServerConfig struct {
	// ServiceName provides the service name: gateway|admin etc
	ServiceName string `json:"service_name" yaml:"service_name"`

	// BindAddr provides the address that the server should be listening on
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// PublicURL is the FQ name that clients use to connect
	PublicURL string `json:"public_url,omitempty" yaml:"public_url,omitempty"`

	// ShutdownTimeout is the draining timeout on server shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`

	// LogSkipPaths provides the list of paths excluded from request logging
	LogSkipPaths []string `json:"log_skip_paths,omitempty" yaml:"log_skip_paths,omitempty"`
}

// Upstream describes a proxied backend service
type Upstream struct {
	// Name provides the service name: user-service|workout-service etc
	Name string `json:"name" yaml:"name"`

	// PathPrefix provides the route prefix served by this upstream
	PathPrefix string `json:"path_prefix" yaml:"path_prefix"`

	// Endpoint provides the base URL of the upstream
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// ResponseHeaderTimeout limits the wait for the upstream response headers
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout,omitempty" yaml:"response_header_timeout,omitempty"`
}

// RateLimit contains configuration for rate limiting
type RateLimit struct {
	// Enabled specifies if the rate limiting is enabled
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// RequestsPerSecond specifies the maximum number of requests per second
	RequestsPerSecond int `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	// ExpirationTTL specifies the TTL for the token bucket, default 10 mins
	ExpirationTTL time.Duration `json:"expiration_ttl,omitempty" yaml:"expiration_ttl,omitempty"`
	// HeadersIPLookups, default is "X-Forwarded-For", "X-Real-IP" or "RemoteAddr"
	HeadersIPLookups []string `json:"headers_ip_lookups,omitempty" yaml:"headers_ip_lookups,omitempty"`
	// Methods, can be: "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// GetEnabled specifies if the rate limiting is enabled
func (c *RateLimit) GetEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// GetServerName provides name of the server
func (c *ServerConfig) GetServerName() string {
	if c.ServiceName != "" {
		return c.ServiceName
	}
	return "gateway"
}

// GetPort returns the port from the bind address,
// or the standard HTTP 80 port, if it's not specified in the config
func GetPort(bindAddr string) string {
	i := strings.LastIndex(bindAddr, ":")
	if i >= 0 {
		return bindAddr[i+1:]
	}
	return "80"
}

// GetHostName returns hostname from the bind address,
// or OS hostname, if it's not specified in the config
func GetHostName(bindAddr string) string {
	hn := bindAddr
	i := strings.LastIndex(bindAddr, ":")
	if i >= 0 {
		hn = bindAddr[:i]
	}
	if hn == "" {
		hn, _ = os.Hostname()
	}
	return hn
}
