package roles

import (
	"strings"

	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/xhttp/header"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultEmailDomain is used for the placeholder email
	// when the token carries no email claim
	DefaultEmailDomain = "users.fitpulse.dev"

	defaultGivenName  = "FitPulse"
	defaultFamilyName = "User"
)

// Claims is the per-request view of the bearer token payload.
// The signature is NOT verified here: verification is the job of the
// authenticator in front of this gateway, this extractor is purely
// informational.
type Claims struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string

	// Raw token claims, for the authority mapper
	Raw jwt.MapClaims
	// Token is the raw compact JWT
	Token string
}

// ExtractClaims parses the Authorization header value into Claims.
// A missing header, a non-Bearer scheme, or a malformed token all
// return nil: identity resolution proceeds without token-derived data.
func ExtractClaims(authHeader, emailDomain string) *Claims {
	if authHeader == "" {
		return nil
	}
	prefix := header.Bearer + " "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return nil
	}
	token := authHeader[len(prefix):]

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "malformed_token", "err", err.Error())
		return nil
	}
	raw, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		logger.KV(xlog.WARNING, "reason", "unexpected_claims_type")
		return nil
	}

	c := &Claims{
		Subject:    stringClaim(raw, "sub"),
		Email:      stringClaim(raw, "email"),
		GivenName:  stringClaim(raw, "given_name"),
		FamilyName: stringClaim(raw, "family_name"),
		Raw:        raw,
		Token:      token,
	}

	// Missing profile claims fall back to deterministic defaults so that
	// downstream auto-registration never fails on an incomplete profile.
	if c.Email == "" && c.Subject != "" {
		if emailDomain == "" {
			emailDomain = DefaultEmailDomain
		}
		c.Email = c.Subject + "@" + emailDomain
	}
	if c.GivenName == "" {
		c.GivenName = defaultGivenName
	}
	if c.FamilyName == "" {
		c.FamilyName = defaultFamilyName
	}

	return c
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}
