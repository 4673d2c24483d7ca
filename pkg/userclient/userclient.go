// Package userclient talks to the user service: it checks that a
// token-authenticated caller exists and registers a profile for
// first-seen callers. Identities already confirmed are remembered in a
// local LRU and, optionally, a shared cache, so hot callers don't hit
// the user service on every request.
package userclient

import (
	"context"
	"net/http"
	"time"

	"github.com/effective-security/x/guid"
	"github.com/effective-security/xlog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/fitpulse/gateway/pkg/cache"
	"github.com/fitpulse/gateway/pkg/retriable"
	"github.com/fitpulse/gateway/xhttp/httperror"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/pkg", "userclient")

// defaultSeenCapacity bounds the local LRU of confirmed identities
const defaultSeenCapacity = 10240

// User is the user service registration resource.
// The wire names follow the user service API.
type User struct {
	ID         string `json:"id,omitempty"`
	ExternalID string `json:"keycloakId"`
	Email      string `json:"email"`
	Password   string `json:"password,omitempty"`
	GivenName  string `json:"firstName"`
	FamilyName string `json:"lastName"`
}

// Config specifies the user service connection
type Config struct {
	// Hosts lists the user service base URLs, tried in order
	Hosts []string `json:"hosts" yaml:"hosts"`
	// RequestTimeout bounds a single validate or register call
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	// SeenTTL specifies for how long a confirmed identity is not re-validated
	SeenTTL time.Duration `json:"seen_ttl" yaml:"seen_ttl"`
}

// Provider validates and registers caller identities
type Provider interface {
	// Validate returns true if the subject is known to the user service
	Validate(ctx context.Context, subject string) (bool, error)
	// Register creates the user and returns the created resource
	Register(ctx context.Context, user *User) (*User, error)
	// Ensure confirms the subject exists, registering it on first
	// sight, and remembers the outcome
	Ensure(ctx context.Context, user *User) error
}

// Client implements Provider over the retriable HTTP client
type Client struct {
	cfg    Config
	http   *retriable.Client
	seen   *lru.Cache[string, time.Time]
	shared cache.Provider
}

// An Option modifies the default behavior of Client
type Option func(*Client)

// WithHTTPClient overrides the outbound HTTP client, used in tests
func WithHTTPClient(hc *retriable.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSharedCache attaches a cache shared across gateway replicas
func WithSharedCache(p cache.Provider) Option {
	return func(c *Client) {
		c.shared = p
	}
}

// New returns a user service client
func New(cfg *Config, opts ...Option) (*Client, error) {
	seen, err := lru.New[string, time.Time](defaultSeenCapacity)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := &Client{
		cfg:  *cfg,
		seen: seen,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = retriable.New(
			retriable.WithName("userclient"),
			retriable.WithHosts(cfg.Hosts),
			retriable.WithTimeout(cfg.RequestTimeout),
		)
	}
	return c, nil
}

func (c *Client) seenTTL() time.Duration {
	if c.cfg.SeenTTL > 0 {
		return c.cfg.SeenTTL
	}
	return cache.DefaultTTL
}

// Validate returns true if the subject is known to the user service
func (c *Client) Validate(ctx context.Context, subject string) (bool, error) {
	var exists bool
	_, sc, err := c.http.Get(ctx, "/validate/"+subject, &exists)
	if err != nil {
		if sc == http.StatusNotFound || httperror.Status(err) == http.StatusNotFound {
			return false, nil
		}
		return false, errors.WithMessagef(err, "failed to validate user: %s", subject)
	}
	return exists, nil
}

// Register creates the user and returns the created resource
func (c *Client) Register(ctx context.Context, user *User) (*User, error) {
	req := *user
	if req.Password == "" {
		// the user service requires a credential even for token-backed
		// accounts that never log in with one
		req.Password = guid.MustCreate()
	}

	var res User
	_, _, err := c.http.Post(ctx, "/register", &req, &res)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to register user: %s", user.ExternalID)
	}
	return &res, nil
}

// Ensure confirms the subject exists in the user service, registering
// it on first sight, and remembers the outcome so repeated calls for a
// hot identity are no-ops.
func (c *Client) Ensure(ctx context.Context, user *User) error {
	subject := user.ExternalID
	if subject == "" {
		return errors.New("invalid user: external_id is required")
	}

	if c.isSeen(ctx, subject) {
		return nil
	}

	known, err := c.Validate(ctx, subject)
	if err != nil {
		return err
	}

	if !known {
		_, err = c.Register(ctx, user)
		if err != nil {
			return err
		}
		logger.ContextKV(ctx, xlog.INFO,
			"action", "registered",
			"subject", subject)
	}

	c.markSeen(ctx, subject)
	return nil
}

func (c *Client) isSeen(ctx context.Context, subject string) bool {
	if exp, ok := c.seen.Get(subject); ok {
		if exp.After(time.Now()) {
			return true
		}
		c.seen.Remove(subject)
	}

	if c.shared != nil {
		var mark string
		if err := c.shared.Get(ctx, subject, &mark); err == nil {
			c.seen.Add(subject, time.Now().Add(c.seenTTL()))
			return true
		}
	}
	return false
}

func (c *Client) markSeen(ctx context.Context, subject string) {
	c.seen.Add(subject, time.Now().Add(c.seenTTL()))
	if c.shared != nil {
		if err := c.shared.Set(ctx, subject, "seen", c.seenTTL()); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "shared_cache",
				"subject", subject,
				"err", err.Error())
		}
	}
}
