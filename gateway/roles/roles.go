// Package roles maps bearer token claims to a caller identity:
// subject and profile claims via the extractor, and a normalized
// authority set collected from several possible claim locations.
package roles

import (
	"net/http"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/fitpulse/gateway/xhttp/identity"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/gateway", "roles")

// DefaultAuthenticatedRole is assigned to token-authenticated callers
// not found in the configured role maps
const DefaultAuthenticatedRole = "member"

// IdentityProvider interface to extract identity from requests
type IdentityProvider interface {
	// ApplicableForRequest returns true if the provider is applicable for the request
	ApplicableForRequest(*http.Request) bool
	// IdentityFromRequest returns identity from the request
	IdentityFromRequest(*http.Request) identity.Identity
}

// Provider maps token claims to identity
type Provider struct {
	cfg         Config
	subjRoles   map[string]string
	rolePrefix  string
	emailDomain string
	extractors  []claimValues
}

// New returns an identity provider instance
func New(cfg *Config) *Provider {
	prov := &Provider{
		cfg:         *cfg,
		subjRoles:   make(map[string]string),
		rolePrefix:  values.StringsCoalesce(cfg.RolePrefix, DefaultRolePrefix),
		emailDomain: values.StringsCoalesce(cfg.EmailDomain, DefaultEmailDomain),
		extractors:  buildExtractors(cfg.RoleClaims),
	}

	for role, subjects := range cfg.Roles {
		for _, subj := range subjects {
			prov.subjRoles[subj] = role
		}
	}

	return prov
}

// ApplicableForRequest returns true if the provider is applicable for the request
func (p *Provider) ApplicableForRequest(r *http.Request) bool {
	return r.Header.Get(header.Authorization) != ""
}

// IdentityFromRequest returns identity from the request.
// A missing or malformed token yields the guest identity, never an error.
func (p *Provider) IdentityFromRequest(r *http.Request) identity.Identity {
	claims := ExtractClaims(r.Header.Get(header.Authorization), p.emailDomain)
	if claims == nil || claims.Subject == "" {
		return identity.GuestIdentity()
	}

	role := p.subjRoles[claims.Subject]
	if role == "" {
		role = values.StringsCoalesce(p.cfg.DefaultAuthenticatedRole, DefaultAuthenticatedRole)
	}

	authorities := p.MapAuthorities(claims.Raw)

	logger.KV(xlog.DEBUG,
		"role", role,
		"subject", claims.Subject,
		"authorities", len(authorities))

	id := identity.NewIdentity(role, claims.Subject, authorities, claims.Raw, claims.Token)
	return identity.WithProfile(id, claims.Email, claims.GivenName, claims.FamilyName)
}
