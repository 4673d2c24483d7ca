package authz_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/gateway/gateway/authz"
	"github.com/fitpulse/gateway/xhttp/identity"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(t *testing.T, h http.Handler, path string, id identity.Identity) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if id != nil {
		r = identity.WithTestIdentity(r, id)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestNewFromConfig(t *testing.T) {
	t.Run("invalid_allow", func(t *testing.T) {
		_, err := authz.New(&authz.Config{Allow: []string{"/v1/admin"}})
		assert.EqualError(t, err, `not valid Authz allow configuration: "/v1/admin"`)
	})

	t.Run("no_paths", func(t *testing.T) {
		p, err := authz.New(&authz.Config{})
		require.NoError(t, err)
		_, err = p.NewHandler(okHandler())
		assert.Error(t, err)
	})
}

func TestDeepestMatch(t *testing.T) {
	p, err := authz.New(&authz.Config{
		AllowAny: []string{"/v1/status"},
		Allow: []string{
			"/api:member",
			"/api/admin:fitpulse-admin",
		},
	})
	require.NoError(t, err)

	h, err := p.NewHandler(okHandler())
	require.NoError(t, err)

	member := identity.NewIdentity("member", "u-1001", nil, nil, "")
	admin := identity.NewIdentity("fitpulse-admin", "u-admin", nil, nil, "")

	t.Run("any_path_without_identity", func(t *testing.T) {
		w := request(t, h, "/v1/status", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("member_allowed_on_api", func(t *testing.T) {
		w := request(t, h, "/api/activities", member)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("member_denied_on_deeper_admin_node", func(t *testing.T) {
		w := request(t, h, "/api/admin/reports", member)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin_allowed_on_admin_node", func(t *testing.T) {
		w := request(t, h, "/api/admin/reports", admin)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("admin_denied_on_api_node", func(t *testing.T) {
		// deepest match only, parents do not accumulate
		w := request(t, h, "/api/activities", admin)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("guest_denied", func(t *testing.T) {
		w := request(t, h, "/api/activities", identity.GuestIdentity())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("options_always_allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/admin/reports", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthoritySet(t *testing.T) {
	p, err := authz.New(&authz.Config{
		Allow: []string{"/api/coaching:ROLE_coach"},
	})
	require.NoError(t, err)

	h, err := p.NewHandler(okHandler())
	require.NoError(t, err)

	coach := identity.NewIdentity("member", "u-2001", []string{"ROLE_coach"}, nil, "")
	plain := identity.NewIdentity("member", "u-2002", nil, nil, "")

	w := request(t, h, "/api/coaching/sessions", coach)
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, h, "/api/coaching/sessions", plain)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAllowAnyRole(t *testing.T) {
	p, err := authz.New(&authz.Config{
		AllowAnyRole: []string{"/api"},
	})
	require.NoError(t, err)

	h, err := p.NewHandler(okHandler())
	require.NoError(t, err)

	w := request(t, h, "/api/activities", identity.NewIdentity("member", "u-1", nil, nil, ""))
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, h, "/api/activities", identity.GuestIdentity())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCloneIsolation(t *testing.T) {
	p, err := authz.New(&authz.Config{AllowAny: []string{"/v1/status"}})
	require.NoError(t, err)

	h, err := p.NewHandler(okHandler())
	require.NoError(t, err)

	// changes after NewHandler must not affect the handler
	p.Allow("/api", "member")
	w := request(t, h, "/api/activities", identity.NewIdentity("member", "u-1", nil, nil, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
