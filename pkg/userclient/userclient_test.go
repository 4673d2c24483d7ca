package userclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/gateway/pkg/cache"
	"github.com/fitpulse/gateway/pkg/userclient"
)

type userService struct {
	validates    atomic.Int32
	registers    atomic.Int32
	known        map[string]bool
	lastPassword string
}

func newUserService(known ...string) *userService {
	s := &userService{known: map[string]bool{}}
	for _, k := range known {
		s.known[k] = true
	}
	return s
}

func (s *userService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /validate/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.validates.Add(1)
		_ = json.NewEncoder(w).Encode(s.known[r.PathValue("id")])
	})
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		s.registers.Add(1)
		var u userclient.User
		_ = json.NewDecoder(r.Body).Decode(&u)
		s.known[u.ExternalID] = true
		s.lastPassword = u.Password
		u.ID = "id-" + u.ExternalID
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&u)
	})
	return mux
}

func TestValidate(t *testing.T) {
	svc := newUserService("u-1001")
	server := httptest.NewServer(svc.handler())
	defer server.Close()

	client, err := userclient.New(&userclient.Config{Hosts: []string{server.URL}})
	require.NoError(t, err)

	ctx := context.Background()

	known, err := client.Validate(ctx, "u-1001")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = client.Validate(ctx, "u-missing")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestRegister(t *testing.T) {
	svc := newUserService()
	server := httptest.NewServer(svc.handler())
	defer server.Close()

	client, err := userclient.New(&userclient.Config{Hosts: []string{server.URL}})
	require.NoError(t, err)

	res, err := client.Register(context.Background(), &userclient.User{
		ExternalID: "u-2001",
		Email:      "u-2001@users.fitpulse.dev",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-u-2001", res.ID)
	assert.NotEmpty(t, svc.lastPassword, "expected a placeholder credential")
}

func TestEnsure(t *testing.T) {
	t.Run("registers_first_seen", func(t *testing.T) {
		svc := newUserService()
		server := httptest.NewServer(svc.handler())
		defer server.Close()

		client, err := userclient.New(&userclient.Config{Hosts: []string{server.URL}})
		require.NoError(t, err)

		ctx := context.Background()
		user := &userclient.User{ExternalID: "u-3001", Email: "u-3001@users.fitpulse.dev"}

		require.NoError(t, client.Ensure(ctx, user))
		assert.EqualValues(t, 1, svc.validates.Load())
		assert.EqualValues(t, 1, svc.registers.Load())

		// second call is served from the seen cache
		require.NoError(t, client.Ensure(ctx, user))
		assert.EqualValues(t, 1, svc.validates.Load())
		assert.EqualValues(t, 1, svc.registers.Load())
	})

	t.Run("known_user_not_registered", func(t *testing.T) {
		svc := newUserService("u-3002")
		server := httptest.NewServer(svc.handler())
		defer server.Close()

		client, err := userclient.New(&userclient.Config{Hosts: []string{server.URL}})
		require.NoError(t, err)

		require.NoError(t, client.Ensure(context.Background(), &userclient.User{ExternalID: "u-3002"}))
		assert.EqualValues(t, 1, svc.validates.Load())
		assert.EqualValues(t, 0, svc.registers.Load())
	})

	t.Run("requires_external_id", func(t *testing.T) {
		client, err := userclient.New(&userclient.Config{Hosts: []string{"http://localhost:0"}})
		require.NoError(t, err)
		assert.Error(t, client.Ensure(context.Background(), &userclient.User{}))
	})

	t.Run("shared_cache_skips_validate", func(t *testing.T) {
		svc := newUserService("u-3003")
		server := httptest.NewServer(svc.handler())
		defer server.Close()

		shared := cache.NewMemoryProvider("/identities")
		require.NoError(t, shared.Set(context.Background(), "u-3003", "seen", 0))

		client, err := userclient.New(
			&userclient.Config{Hosts: []string{server.URL}},
			userclient.WithSharedCache(shared),
		)
		require.NoError(t, err)

		require.NoError(t, client.Ensure(context.Background(), &userclient.User{ExternalID: "u-3003"}))
		assert.EqualValues(t, 0, svc.validates.Load())
	})
}
