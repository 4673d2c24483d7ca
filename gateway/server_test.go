package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitpulse/gateway/gateway"
	"github.com/fitpulse/gateway/gateway/authz"
	"github.com/fitpulse/gateway/gateway/resolve"
	"github.com/fitpulse/gateway/gateway/roles"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("seekrit"))
	require.NoError(t, err)
	return tok
}

func newTestServer(t *testing.T, cfg *gateway.Config) *gateway.HTTPServer {
	t.Helper()
	server, err := gateway.New("1.0.123", "127.0.0.1", cfg)
	require.NoError(t, err)

	filter := resolve.NewFilter(&cfg.Identity, roles.New(&cfg.Roles), nil)
	server.WithIdentityFilter(filter)

	if len(cfg.Authz.Allow) > 0 || len(cfg.Authz.AllowAny) > 0 {
		az, err := authz.New(&cfg.Authz)
		require.NoError(t, err)
		server.WithAuthz(az)
	}
	return server
}

func TestServerInfo(t *testing.T) {
	cfg := &gateway.Config{
		Server: gateway.ServerConfig{
			ServiceName: "fitpulse-gateway",
			BindAddr:    "127.0.0.1:8443",
		},
	}
	server, err := gateway.New("1.0.123", "", cfg)
	require.NoError(t, err)

	assert.Equal(t, "fitpulse-gateway", server.Name())
	assert.Equal(t, "1.0.123", server.Version())
	assert.Equal(t, "127.0.0.1", server.HostName())
	assert.Equal(t, "8443", server.Port())
	assert.Equal(t, "http", server.Protocol())
	assert.NotEmpty(t, server.LocalIP())
	assert.Equal(t, "http://127.0.0.1:8443", gateway.GetServerBaseURL(server))
	assert.False(t, server.IsReady())
}

func TestMuxAccess(t *testing.T) {
	cfg := &gateway.Config{
		Server: gateway.ServerConfig{
			ServiceName: "fitpulse-gateway",
			BindAddr:    "127.0.0.1:8443",
		},
		Authz: authz.Config{
			AllowAny: []string{"/v1/status"},
			Allow:    []string{"/api:member"},
		},
	}
	server := newTestServer(t, cfg)
	mux := server.NewMux()

	t.Run("guest_denied", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/workouts", nil)
		mux.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthorized")
	})

	t.Run("member_allowed", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"sub": "u-9000"})
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/workouts", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		mux.ServeHTTP(w, r)
		// allowed by authz, no route registered
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "not_found")
	})

	t.Run("allow_any_path", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
		mux.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMuxRateLimit(t *testing.T) {
	enabled := true
	cfg := &gateway.Config{
		Server: gateway.ServerConfig{
			BindAddr: "127.0.0.1:8443",
		},
		RateLimit: &gateway.RateLimit{
			Enabled:           &enabled,
			RequestsPerSecond: 1,
		},
	}
	server := newTestServer(t, cfg)
	mux := server.NewMux()

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
		r.RemoteAddr = "10.0.0.1:54321"
		mux.ServeHTTP(w, r)
		codes[w.Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
}

func TestStartStop(t *testing.T) {
	cfg := &gateway.Config{
		Server: gateway.ServerConfig{
			ServiceName: "fitpulse-gateway",
			BindAddr:    "127.0.0.1:0",
		},
	}
	server := newTestServer(t, cfg)

	var events []gateway.ServerEvent
	for _, evt := range []gateway.ServerEvent{
		gateway.ServerStartedEvent,
		gateway.ServerStoppingEvent,
		gateway.ServerStoppedEvent,
	} {
		evt := evt
		server.OnEvent(evt, func(gateway.ServerEvent) {
			events = append(events, evt)
		})
	}

	require.NoError(t, server.StartHTTP())
	require.Eventually(t, server.IsReady, 2*time.Second, 10*time.Millisecond)

	server.StopHTTP()
	assert.Equal(t, []gateway.ServerEvent{
		gateway.ServerStartedEvent,
		gateway.ServerStoppingEvent,
		gateway.ServerStoppedEvent,
	}, events)
}
