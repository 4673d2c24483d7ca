package roles

import (
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// claim-location extractors; each returns the raw values found at a
// named claim path, or nil if the claim is absent or of an unexpected shape
type claimValues func(claims jwt.MapClaims) []any

func flatClaim(name string) claimValues {
	return func(claims jwt.MapClaims) []any {
		switch v := claims[name].(type) {
		case []any:
			return v
		case string:
			return []any{v}
		}
		return nil
	}
}

// nestedClaim handles the realm-roles shape: {"realm_access":{"roles":[...]}}
func nestedClaim(parent, child string) claimValues {
	return func(claims jwt.MapClaims) []any {
		m, ok := claims[parent].(map[string]any)
		if !ok {
			return nil
		}
		v, _ := m[child].([]any)
		return v
	}
}

// clientRolesClaim handles the per-client shape:
// {"resource_access":{"web":{"roles":[...]},"mobile":{"roles":[...]}}}
func clientRolesClaim(parent string) claimValues {
	return func(claims jwt.MapClaims) []any {
		m, ok := claims[parent].(map[string]any)
		if !ok {
			return nil
		}
		var res []any
		for _, client := range sortedKeys(m) {
			cm, ok := m[client].(map[string]any)
			if !ok {
				continue
			}
			if rs, ok := cm["roles"].([]any); ok {
				res = append(res, rs...)
			}
		}
		return res
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// keep the scan order repeatable across calls
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func buildExtractors(locations []string) []claimValues {
	if len(locations) == 0 {
		locations = DefaultRoleClaims
	}
	res := make([]claimValues, 0, len(locations))
	for _, loc := range locations {
		switch {
		case strings.HasSuffix(loc, ".*"):
			res = append(res, clientRolesClaim(strings.TrimSuffix(loc, ".*")))
		case strings.Contains(loc, "."):
			parts := strings.SplitN(loc, ".", 2)
			res = append(res, nestedClaim(parts[0], parts[1]))
		default:
			res = append(res, flatClaim(loc))
		}
	}
	return res
}

// MapAuthorities merges every role-like claim found under the configured,
// ordered list of claim locations into a normalized authority set:
// deduplicated, insertion-ordered, each entry carrying the role prefix
// exactly once. Absent or malformed claims yield an empty set.
func (p *Provider) MapAuthorities(claims jwt.MapClaims) []string {
	if len(claims) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var res []string
	for _, extract := range p.extractors {
		for _, v := range extract(claims) {
			if v == nil {
				continue
			}
			s := strings.TrimSpace(fmt.Sprint(v))
			if s == "" {
				continue
			}
			if !strings.HasPrefix(s, p.rolePrefix) {
				s = p.rolePrefix + s
			}
			if !seen[s] {
				seen[s] = true
				res = append(res, s)
			}
		}
	}
	return res
}
