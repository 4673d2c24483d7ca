package roles_test

import (
	"net/http"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/gateway/gateway/roles"
	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/fitpulse/gateway/xhttp/identity"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestExtractClaims(t *testing.T) {
	t.Run("no_header", func(t *testing.T) {
		assert.Nil(t, roles.ExtractClaims("", roles.DefaultEmailDomain))
	})

	t.Run("not_bearer", func(t *testing.T) {
		assert.Nil(t, roles.ExtractClaims("Basic dXNlcjpwYXNz", roles.DefaultEmailDomain))
	})

	t.Run("malformed", func(t *testing.T) {
		assert.Nil(t, roles.ExtractClaims("Bearer not.a.jwt", roles.DefaultEmailDomain))
		assert.Nil(t, roles.ExtractClaims("Bearer garbage", roles.DefaultEmailDomain))
	})

	t.Run("full_profile", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{
			"sub":         "u-1001",
			"email":       "denis@fitpulse.dev",
			"given_name":  "Denis",
			"family_name": "Volkov",
		})
		c := roles.ExtractClaims(header.Bearer+" "+tok, roles.DefaultEmailDomain)
		require.NotNil(t, c)
		assert.Equal(t, "u-1001", c.Subject)
		assert.Equal(t, "denis@fitpulse.dev", c.Email)
		assert.Equal(t, "Denis", c.GivenName)
		assert.Equal(t, "Volkov", c.FamilyName)
		assert.Equal(t, tok, c.Token)
	})

	t.Run("placeholder_defaults", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"sub": "u-1002"})
		c := roles.ExtractClaims(header.Bearer+" "+tok, "mail.local")
		require.NotNil(t, c)
		assert.Equal(t, "u-1002@mail.local", c.Email)
		assert.Equal(t, "FitPulse", c.GivenName)
		assert.Equal(t, "User", c.FamilyName)
	})
}

func TestMapAuthorities(t *testing.T) {
	prov := roles.New(&roles.Config{})

	t.Run("flat_array", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"roles": []any{"coach", "admin"},
		})
		assert.Equal(t, []string{"ROLE_coach", "ROLE_admin"}, got)
	})

	t.Run("single_string_value", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"authorities": "coach",
		})
		assert.Equal(t, []string{"ROLE_coach"}, got)
	})

	t.Run("realm_roles", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"realm_access": map[string]any{
				"roles": []any{"trainer"},
			},
		})
		assert.Equal(t, []string{"ROLE_trainer"}, got)
	})

	t.Run("client_roles", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"resource_access": map[string]any{
				"booking-api": map[string]any{
					"roles": []any{"scheduler"},
				},
			},
		})
		assert.Equal(t, []string{"ROLE_scheduler"}, got)
	})

	t.Run("dedupe_across_locations", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"roles":       []any{"coach"},
			"authorities": []any{"coach", "admin"},
			"realm_access": map[string]any{
				"roles": []any{"admin"},
			},
		})
		assert.Equal(t, []string{"ROLE_coach", "ROLE_admin"}, got)
	})

	t.Run("no_double_prefix", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"roles": []any{"ROLE_admin", "admin"},
		})
		assert.Equal(t, []string{"ROLE_admin"}, got)
	})

	t.Run("idempotent", func(t *testing.T) {
		claims := jwt.MapClaims{"roles": []any{"coach", "admin"}}
		first := prov.MapAuthorities(claims)
		second := prov.MapAuthorities(claims)
		assert.Equal(t, first, second)
	})

	t.Run("empty_claims", func(t *testing.T) {
		assert.Empty(t, prov.MapAuthorities(jwt.MapClaims{}))
	})

	t.Run("blank_values_skipped", func(t *testing.T) {
		got := prov.MapAuthorities(jwt.MapClaims{
			"roles": []any{"  ", "", "coach"},
		})
		assert.Equal(t, []string{"ROLE_coach"}, got)
	})
}

func TestMapAuthoritiesCustomConfig(t *testing.T) {
	prov := roles.New(&roles.Config{
		RolePrefix: "AUTH_",
		RoleClaims: []string{"permissions"},
	})
	got := prov.MapAuthorities(jwt.MapClaims{
		"permissions": []any{"read"},
		"roles":       []any{"ignored"},
	})
	assert.Equal(t, []string{"AUTH_read"}, got)
}

func TestIdentityFromRequest(t *testing.T) {
	prov := roles.New(&roles.Config{
		Roles: map[string][]string{
			"fitpulse-admin": {"u-admin"},
		},
	})

	t.Run("no_token_guest", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/v1/workouts", nil)
		assert.False(t, prov.ApplicableForRequest(r))
		id := prov.IdentityFromRequest(r)
		assert.Equal(t, identity.GuestRoleName, id.Role())
	})

	t.Run("malformed_token_guest", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/v1/workouts", nil)
		r.Header.Set(header.Authorization, "Bearer bogus")
		assert.True(t, prov.ApplicableForRequest(r))
		id := prov.IdentityFromRequest(r)
		assert.Equal(t, identity.GuestRoleName, id.Role())
	})

	t.Run("authenticated_default_role", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{
			"sub":   "u-1001",
			"roles": []any{"coach"},
		})
		r, _ := http.NewRequest(http.MethodGet, "/v1/workouts", nil)
		r.Header.Set(header.Authorization, header.Bearer+" "+tok)
		id := prov.IdentityFromRequest(r)
		assert.Equal(t, roles.DefaultAuthenticatedRole, id.Role())
		assert.Equal(t, "u-1001", id.Subject())
		assert.Equal(t, []string{"ROLE_coach"}, id.Roles())
		assert.Equal(t, tok, id.AccessToken())
	})

	t.Run("mapped_subject_role", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"sub": "u-admin"})
		r, _ := http.NewRequest(http.MethodGet, "/v1/workouts", nil)
		r.Header.Set(header.Authorization, header.Bearer+" "+tok)
		id := prov.IdentityFromRequest(r)
		assert.Equal(t, "fitpulse-admin", id.Role())
	})
}
