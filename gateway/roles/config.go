package roles

// DefaultRolePrefix is prepended to authorities that don't already carry it
const DefaultRolePrefix = "ROLE_"

// Config contains configuration for the identity provider
type Config struct {
	// DefaultAuthenticatedRole specifies role name for a token-authenticated
	// caller whose subject is not found in the Roles maps
	DefaultAuthenticatedRole string `json:"default_authenticated_role" yaml:"default_authenticated_role"`

	// RolePrefix is prepended to mapped authorities that don't already
	// start with it; defaults to ROLE_
	RolePrefix string `json:"role_prefix" yaml:"role_prefix"`

	// RoleClaims is the ordered list of claim locations to collect
	// authorities from. Supported shapes:
	//   name                  - flat array or single string claim
	//   realm_access.roles    - nested object with a "roles" array
	//   resource_access.*     - per-client map of objects with "roles" arrays
	// When empty, DefaultRoleClaims is used.
	RoleClaims []string `json:"role_claims" yaml:"role_claims"`

	// Roles is a map of role to subjects
	Roles map[string][]string `json:"roles" yaml:"roles"`

	// EmailDomain is used to derive a placeholder email for tokens
	// without an email claim; defaults to users.fitpulse.dev
	EmailDomain string `json:"email_domain" yaml:"email_domain"`
}

// DefaultRoleClaims is the fixed, ordered list of claim locations
// scanned when the configuration does not override it.
var DefaultRoleClaims = []string{
	"roles",
	"authorities",
	"realm_access.roles",
	"resource_access.*",
}
