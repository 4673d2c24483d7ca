package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/gateway/authz"
	"github.com/fitpulse/gateway/gateway/resolve"
	"github.com/fitpulse/gateway/gateway/telemetry"
	"github.com/fitpulse/gateway/x/netutil"
	"github.com/fitpulse/gateway/xhttp/correlation"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway", "gateway")

// MaxRequestSize specifies max size of regular HTTP Post requests in bytes, 64 Mb
const MaxRequestSize = 64 * 1024 * 1024

// ServerEvent specifies server event type
type ServerEvent int

const (
	// ServerStartedEvent is fired on server start
	ServerStartedEvent ServerEvent = iota
	// ServerStoppedEvent is fired after server stopped
	ServerStoppedEvent
	// ServerStoppingEvent is fired before server stopped
	ServerStoppingEvent
)

// ServerEventFunc is a callback to handle server events
type ServerEventFunc func(evt ServerEvent)

// Service provides a way for subservices to be registered so they get added to the http API
type Service interface {
	Name() string
	// IsReady indicates that the service is ready to serve its end-points
	IsReady() bool
	// Close signals the service to stop
	Close()
	// Register conects the service's end-points to the router
	Register(Router)
}

// Server is an interface to provide server status
type Server interface {
	http.Handler
	Name() string
	Version() string
	HostName() string
	LocalIP() string
	Port() string
	Protocol() string
	PublicURL() string
	StartedAt() time.Time
	Service(name string) Service
	Config() *Config

	// IsReady indicates that all subservices are ready to serve
	IsReady() bool

	AddService(s Service)
	StartHTTP() error
	StopHTTP()

	OnEvent(evt ServerEvent, handler ServerEventFunc)
}

// MuxFactory creates http handlers.
type MuxFactory interface {
	NewMux() http.Handler
}

// HTTPServer is responsible for exposing the collection of the services
// as a single HTTP server
type HTTPServer struct {
	Server
	cfg             *Config
	authz           *authz.Provider
	identityFilter  *resolve.Filter
	httpServer      *http.Server
	muxFactory      MuxFactory
	hostname        string
	port            string
	ipaddr          string
	version         string
	serving         bool
	startedAt       time.Time
	services        map[string]Service
	evtHandlers     map[ServerEvent][]ServerEventFunc
	lock            sync.RWMutex
	shutdownTimeout time.Duration
}

// New creates a new instance of the server
func New(version string, ipaddr string, cfg *Config) (*HTTPServer, error) {
	var err error
	if ipaddr == "" {
		ipaddr, err = netutil.GetLocalIP()
		if err != nil {
			ipaddr = "127.0.0.1"
			logger.ContextKV(context.Background(), xlog.ERROR,
				"reason", "unable_determine_ipaddr",
				"use", ipaddr,
				"err", err.Error())
		}
	}

	s := &HTTPServer{
		cfg:             cfg,
		services:        map[string]Service{},
		startedAt:       time.Now().UTC(),
		version:         version,
		ipaddr:          ipaddr,
		evtHandlers:     make(map[ServerEvent][]ServerEventFunc),
		hostname:        GetHostName(cfg.Server.BindAddr),
		port:            GetPort(cfg.Server.BindAddr),
		shutdownTimeout: 5 * time.Second,
	}
	if cfg.Server.ShutdownTimeout > 0 {
		s.shutdownTimeout = cfg.Server.ShutdownTimeout
	}
	s.muxFactory = s

	return s, nil
}

// WithAuthz enables path access control
func (server *HTTPServer) WithAuthz(p *authz.Provider) *HTTPServer {
	server.authz = p
	return server
}

// WithIdentityFilter enables identity resolution on each request
func (server *HTTPServer) WithIdentityFilter(f *resolve.Filter) *HTTPServer {
	server.identityFilter = f
	return server
}

// WithShutdownTimeout sets the connection draining timeout on server shutdown
func (server *HTTPServer) WithShutdownTimeout(timeout time.Duration) *HTTPServer {
	server.shutdownTimeout = timeout
	return server
}

// WithMuxFactory requires the server to use `muxFactory` to create server handler.
func (server *HTTPServer) WithMuxFactory(muxFactory MuxFactory) {
	server.muxFactory = muxFactory
}

// AddService provides a service registration for the server
func (server *HTTPServer) AddService(s Service) {
	server.lock.Lock()
	defer server.lock.Unlock()
	if server.services[s.Name()] != nil {
		logger.Panicf("service already registered: %s", s.Name())
	}
	server.services[s.Name()] = s
}

// OnEvent accepts a callback to handle server events
func (server *HTTPServer) OnEvent(evt ServerEvent, handler ServerEventFunc) {
	server.lock.Lock()
	defer server.lock.Unlock()

	server.evtHandlers[evt] = append(server.evtHandlers[evt], handler)
}

// Service returns a registered service
func (server *HTTPServer) Service(name string) Service {
	server.lock.RLock()
	defer server.lock.RUnlock()
	return server.services[name]
}

// HostName returns the host name of the server
func (server *HTTPServer) HostName() string {
	return server.hostname
}

// Port returns the port of the server
func (server *HTTPServer) Port() string {
	return server.port
}

// Protocol returns the protocol
func (server *HTTPServer) Protocol() string {
	return "http"
}

// LocalIP returns the IP address of the server
func (server *HTTPServer) LocalIP() string {
	return server.ipaddr
}

// PublicURL returns the public URL of the server
func (server *HTTPServer) PublicURL() string {
	return server.cfg.Server.PublicURL
}

// StartedAt returns the time when the server started
func (server *HTTPServer) StartedAt() time.Time {
	return server.startedAt
}

// Uptime returns the duration the server was up
func (server *HTTPServer) Uptime() time.Duration {
	return time.Now().UTC().Sub(server.startedAt)
}

// Version returns the version of the server
func (server *HTTPServer) Version() string {
	return server.version
}

// Name returns the server name
func (server *HTTPServer) Name() string {
	return server.cfg.Server.GetServerName()
}

// Config returns the gateway configuration
func (server *HTTPServer) Config() *Config {
	return server.cfg
}

// IsReady returns true when the server is ready to serve
func (server *HTTPServer) IsReady() bool {
	if !server.serving {
		return false
	}
	for _, ss := range server.services {
		if !ss.IsReady() {
			return false
		}
	}
	return true
}

func (server *HTTPServer) broadcast(evt ServerEvent) {
	for _, handler := range server.evtHandlers[evt] {
		handler(evt)
	}
}

// StartHTTP starts the HTTP listener for the server
func (server *HTTPServer) StartHTTP() error {
	bindAddr := server.cfg.Server.BindAddr

	if _, err := net.ResolveTCPAddr("tcp", bindAddr); err != nil {
		return errors.WithMessagef(err, "unable to resolve address")
	}

	server.httpServer = &http.Server{
		Addr:        bindAddr,
		IdleTimeout: time.Hour,
		ErrorLog:    xlog.Stderr,
		Handler:     server.muxFactory.NewMux(),
	}

	go func() {
		server.broadcast(ServerStartedEvent)
		server.serving = true

		logger.KV(xlog.INFO,
			"server", server.Name(),
			"bind", bindAddr,
			"status", "starting",
			"protocol", server.Protocol())

		if err := server.httpServer.ListenAndServe(); err != nil {
			server.serving = false
			if netutil.IsAddrInUse(err) || err != http.ErrServerClosed {
				logger.Panicf("server=%s, err=[%+v]", server.Name(), errors.WithStack(err))
			}
			logger.KV(xlog.WARNING,
				"server", server.Name(),
				"status", "stopped",
				"reason", err.Error())
		}
	}()

	return nil
}

// StopHTTP performs a graceful shutdown: services are closed first,
// then in-flight requests are drained up to the shutdown timeout.
// The server instance is not reusable after this call.
func (server *HTTPServer) StopHTTP() {
	server.broadcast(ServerStoppingEvent)

	for _, f := range server.services {
		logger.KV(xlog.TRACE, "service", f.Name(), "status", "closing")
		f.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), server.shutdownTimeout)
	defer cancel()
	if err := server.httpServer.Shutdown(ctx); err != nil {
		logger.KV(xlog.ERROR, "reason", "shutdown", "err", err.Error())
	}
	server.broadcast(ServerStoppedEvent)
}

// NewMux creates a new http handler for the http server, typically you only
// need to call this directly for tests.
func (server *HTTPServer) NewMux() http.Handler {
	// NOTE: the handlers are executed in the reverse order

	router := NewRouter(notFoundHandler)
	for _, f := range server.services {
		f.Register(router)
	}
	logger.KV(xlog.DEBUG,
		"server", server.Name(),
		"service_count", len(server.services))

	httpHandler := router.Handler()

	if server.authz != nil {
		var err error
		httpHandler, err = server.authz.NewHandler(httpHandler)
		if err != nil {
			logger.Panicf("failed to create authz handler: %+v", err)
		}
	}

	// logging wrapper
	var skip []telemetry.LoggerSkipPath
	for _, p := range server.cfg.Server.LogSkipPaths {
		skip = append(skip, telemetry.LoggerSkipPath{Path: p, Agent: "*"})
	}
	httpHandler = telemetry.NewRequestLogger(
		httpHandler,
		time.Millisecond,
		logger,
		telemetry.WithLoggerSkipPaths(skip))

	// metrics wrapper
	httpHandler = telemetry.NewRequestMetrics(httpHandler)

	// identity resolution wrapper
	if server.identityFilter != nil {
		httpHandler = server.identityFilter.NewHandler(httpHandler)
	}

	// rate limiting wrapper
	httpHandler = NewRateLimitHandler(server.cfg.RateLimit, httpHandler)

	// Add correlationID
	httpHandler = correlation.NewHandler(httpHandler)

	return httpHandler
}

// ServeHTTP should write reply headers and data to the ResponseWriter
// and then return.
func (server *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server.httpServer.Handler.ServeHTTP(w, r)
}

// GetServerBaseURL returns server base URL
func GetServerBaseURL(s Server) string {
	return s.Protocol() + "://" + s.HostName() + ":" + s.Port()
}
