// Package identity extracts the caller's contextual identity from the HTTP
// request and exposes it for access via the generalized go context model.
package identity

import "github.com/fitpulse/gateway/x/slices"

const (
	// GuestRoleName is the default role name for an unauthenticated caller
	GuestRoleName = "guest"

	// Anonymous is the placeholder identity injected for callers of
	// public paths that carry no token and no identity header
	Anonymous = "anonymous"
)

// Identity contains information about the identity of an API caller
type Identity interface {
	// String returns the identity as a single string value
	// in the format of subject:role
	String() string
	// Subject returns the stable external identity string,
	// the `sub` claim of the token
	Subject() string
	// Role returns the effective role of the caller
	Role() string
	// Roles returns the normalized authority set, in the order
	// of first discovery across the claim locations
	Roles() []string
	// Email returns the `email` claim, or a deterministic
	// placeholder derived from the subject
	Email() string
	// GivenName returns the `given_name` claim or a generic default
	GivenName() string
	// FamilyName returns the `family_name` claim or a generic default
	FamilyName() string
	// Claims returns the raw token claims, if a token was presented
	Claims() map[string]any
	// AccessToken returns the raw bearer token, if presented
	AccessToken() string
}

// NewIdentity returns a new Identity instance with the indicated role
func NewIdentity(role, subject string, roles []string, claims map[string]any, accessToken string) Identity {
	id := identity{
		role:        role,
		subject:     subject,
		roles:       roles,
		accessToken: accessToken,
	}
	if claims != nil {
		id.claims = make(map[string]any, len(claims))
		for k, v := range claims {
			id.claims[k] = v
		}
	}
	return id
}

// WithProfile returns a copy of Identity with the profile claims set
func WithProfile(id Identity, email, givenName, familyName string) Identity {
	base, ok := id.(identity)
	if !ok {
		base = identity{
			role:    id.Role(),
			subject: id.Subject(),
			roles:   id.Roles(),
			claims:  id.Claims(),
		}
	}
	base.email = email
	base.givenName = givenName
	base.familyName = familyName
	return base
}

type identity struct {
	subject    string
	role       string
	roles      []string
	email      string
	givenName  string
	familyName string
	claims     map[string]any

	accessToken string
}

// Subject returns the caller's subject
func (c identity) Subject() string {
	return c.subject
}

// Role returns the caller's role
func (c identity) Role() string {
	return c.role
}

// Roles returns the normalized authority set
func (c identity) Roles() []string {
	return c.roles
}

// Email returns the caller's email claim
func (c identity) Email() string {
	return c.email
}

// GivenName returns the caller's given name claim
func (c identity) GivenName() string {
	return c.givenName
}

// FamilyName returns the caller's family name claim
func (c identity) FamilyName() string {
	return c.familyName
}

// AccessToken returns the raw bearer token for identity
func (c identity) AccessToken() string {
	return c.accessToken
}

// Claims returns the raw token claims
func (c identity) Claims() map[string]any {
	res := make(map[string]any, len(c.claims))
	for k, v := range c.claims {
		res[k] = v
	}
	return res
}

// String returns the identity as a single string value
// in the format of subject:role
func (c identity) String() string {
	s := slices.StringsCoalesce(c.subject, "unknown")
	if c.role != "" && c.role != c.subject {
		s = s + ":" + c.role
	}
	return s
}
