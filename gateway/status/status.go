// Package status returns the service status and on-demand downstream
// health checks.
package status

import (
	"net/http"
	"time"

	"github.com/fitpulse/gateway/gateway"
	"github.com/fitpulse/gateway/pkg/probe"
	"github.com/fitpulse/gateway/xhttp/marshal"
)

// ServiceName provides the Service Name for this package
const ServiceName = "status"

// ServerStatus provides server status response
type ServerStatus struct {
	// Name of the server
	Name string `json:"name"`
	// Version of the server
	Version string `json:"version"`
	// HostName of the server
	HostName string `json:"hostname"`
	// ListenURL of the server
	ListenURL string `json:"listenUrl"`
	// StartedAt is the time when the server started
	StartedAt time.Time `json:"startedAt"`
	// Uptime of the server
	Uptime string `json:"uptime"`
}

// DownstreamStatus provides the health of the proxied backends,
// keyed by the target name
type DownstreamStatus map[string]probe.Result

// Service defines the status service
type Service struct {
	server gateway.Server
	prober *probe.Prober
}

// New returns a new instance of the status Service
func New(server gateway.Server, prober *probe.Prober) *Service {
	return &Service{
		server: server,
		prober: prober,
	}
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

// Register adds the status end-points
func (s *Service) Register(r gateway.Router) {
	r.GET("/v1/status", s.statusHandler)
	r.GET("/v1/status/downstream", s.downstreamHandler)
}

func (s *Service) statusHandler(w http.ResponseWriter, r *http.Request) {
	res := &ServerStatus{
		Name:      s.server.Name(),
		Version:   s.server.Version(),
		HostName:  s.server.HostName(),
		ListenURL: gateway.GetServerBaseURL(s.server),
		StartedAt: s.server.StartedAt(),
		Uptime:    time.Now().UTC().Sub(s.server.StartedAt()).Round(time.Second).String(),
	}
	marshal.WriteJSON(w, r, res)
}

func (s *Service) downstreamHandler(w http.ResponseWriter, r *http.Request) {
	res := DownstreamStatus{}
	for _, t := range s.prober.ProbeAll(r.Context()) {
		res[t.Name] = t
	}
	marshal.WriteJSON(w, r, res)
}
