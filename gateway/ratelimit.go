package gateway

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/fitpulse/gateway/xhttp/httperror"
	"github.com/fitpulse/gateway/xhttp/marshal"
)

// DefaultRateLimitTTL is the default TTL for the token bucket
const DefaultRateLimitTTL = 10 * time.Minute

// NewRateLimitHandler returns a handler enforcing per-client request rates.
// When the configuration is absent or disabled, the delegate is returned unwrapped.
func NewRateLimitHandler(cfg *RateLimit, delegate http.Handler) http.Handler {
	if !cfg.GetEnabled() || cfg.RequestsPerSecond <= 0 {
		return delegate
	}

	ttl := cfg.ExpirationTTL
	if ttl == 0 {
		ttl = DefaultRateLimitTTL
	}

	lmt := tollbooth.NewLimiter(float64(cfg.RequestsPerSecond), &limiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	})
	if len(cfg.HeadersIPLookups) > 0 {
		lmt.SetIPLookups(cfg.HeadersIPLookups)
	}
	if len(cfg.Methods) > 0 {
		lmt.SetMethods(cfg.Methods)
	}

	return &rateLimitHandler{
		limiter:  lmt,
		delegate: delegate,
	}
}

type rateLimitHandler struct {
	limiter  *limiter.Limiter
	delegate http.Handler
}

func (h *rateLimitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if httpError := tollbooth.LimitByRequest(h.limiter, w, r); httpError != nil {
		marshal.WriteJSON(w, r, httperror.RateLimitExceeded("request rate limit exceeded"))
		return
	}
	h.delegate.ServeHTTP(w, r)
}
