package status_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitpulse/gateway/gateway"
	"github.com/fitpulse/gateway/gateway/status"
	"github.com/fitpulse/gateway/pkg/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusService(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cfg := &gateway.Config{
		Server: gateway.ServerConfig{
			ServiceName: "fitpulse-gateway",
			BindAddr:    "127.0.0.1:8443",
		},
		Probe: probe.Config{
			Targets: []probe.Target{
				{Name: "user-service", URL: healthy.URL + "/actuator/health"},
				{Name: "workout-service", URL: "http://127.0.0.1:1/actuator/health"},
			},
			Timeout:        time.Second,
			Retries:        1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	}

	server, err := gateway.New("1.0.123", "", cfg)
	require.NoError(t, err)

	svc := status.New(server, probe.New(&cfg.Probe))
	assert.Equal(t, status.ServiceName, svc.Name())
	assert.True(t, svc.IsReady())

	router := gateway.NewRouter(http.NotFound)
	svc.Register(router)
	mux := router.Handler()

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
		mux.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var res status.ServerStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "fitpulse-gateway", res.Name)
		assert.Equal(t, "1.0.123", res.Version)
		assert.Equal(t, "http://127.0.0.1:8443", res.ListenURL)
		assert.NotEmpty(t, res.Uptime)
	})

	t.Run("downstream", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/status/downstream", nil)
		mux.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var res status.DownstreamStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Len(t, res, 2)
		assert.Equal(t, "200", res["user-service"].Status)
		assert.Equal(t, probe.StatusError, res["workout-service"].Status)
		assert.Equal(t, 2, res["workout-service"].Attempts)
	})
}
