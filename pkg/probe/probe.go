// Package probe checks the health of the downstream services fronted
// by the gateway. A probe cycle GETs every target's health URL, retries
// the transient gateway-class failures with capped exponential backoff,
// and reports a per-target result. One target's failure never aborts
// another's probe, and a cycle itself never fails.
package probe

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/effective-security/metrics"
	"github.com/effective-security/xlog"

	"github.com/fitpulse/gateway/xhttp/httperror"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/pkg", "probe")

var (
	keyForProbePerf   = "downstream_probe_perf"
	keyForProbeFailed = "downstream_probe_failed"
)

// StatusError marks a target whose probe exhausted all attempts
const StatusError = "ERROR"

// Error types reported in probe results
const (
	ErrorTypeTimeout    = "timeout"
	ErrorTypeConnection = "connection"
	ErrorTypeStatus     = "status"
)

// Target is a named downstream health endpoint
type Target struct {
	// Name identifies the downstream service, e.g. user-service
	Name string `json:"name" yaml:"name"`
	// URL is the full health URL, e.g. http://user-service:8080/health
	URL string `json:"url" yaml:"url"`
}

// Config specifies the probe behavior
type Config struct {
	// Targets lists the downstream health endpoints
	Targets []Target `json:"targets" yaml:"targets"`

	// Timeout bounds a single probe attempt
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Retries is the number of additional attempts after a retryable
	// failure; a target is probed at most Retries+1 times
	Retries int `json:"retries" yaml:"retries"`

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff growth
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// Jitter adds up to this fraction of the wait on top of it
	Jitter float64 `json:"jitter" yaml:"jitter"`
}

// Result is the outcome of probing a single target
type Result struct {
	// Name of the probed target
	Name string `json:"name"`
	// URL that was probed
	URL string `json:"url"`
	// Status is the HTTP status code of the final attempt, or ERROR
	// when all attempts failed
	Status string `json:"status"`
	// Attempts is the number of HTTP calls made for this target
	Attempts int `json:"attempts"`
	// ElapsedMs is the total time spent on this target, retries included
	ElapsedMs int64 `json:"elapsedMs"`
	// ErrorType classifies the failure: timeout, connection or status
	ErrorType string `json:"errorType,omitempty"`
	// Error is the last failure message
	Error string `json:"error,omitempty"`
}

// Succeeded returns true when the final attempt returned a healthy status
func (r Result) Succeeded() bool {
	if r.Status == StatusError {
		return false
	}
	code, err := strconv.Atoi(r.Status)
	return err == nil && code < 400
}

// Prober probes the configured downstream targets
type Prober struct {
	cfg    Config
	client *http.Client
}

const (
	defaultTimeout        = 3 * time.Second
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// New returns a prober for the config
func New(cfg *Config) *Prober {
	p := &Prober{
		cfg: *cfg,
	}
	if p.cfg.Timeout == 0 {
		p.cfg.Timeout = defaultTimeout
	}
	if p.cfg.InitialBackoff == 0 {
		p.cfg.InitialBackoff = defaultInitialBackoff
	}
	if p.cfg.MaxBackoff == 0 {
		p.cfg.MaxBackoff = defaultMaxBackoff
	}
	p.client = &http.Client{
		Timeout: p.cfg.Timeout,
	}
	return p
}

// Targets returns the configured targets
func (p *Prober) Targets() []Target {
	return p.cfg.Targets
}

// ProbeAll probes every target concurrently and returns the results in
// the target order. It never returns an error, per-target failures are
// reported in the results.
func (p *Prober) ProbeAll(ctx context.Context) []Result {
	res := make([]Result, len(p.cfg.Targets))

	var wg sync.WaitGroup
	for i, target := range p.cfg.Targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			res[i] = p.Probe(ctx, target)
		}(i, target)
	}
	wg.Wait()

	return res
}

// Probe checks a single target, retrying transient failures.
// Gateway-class statuses (502, 503, 504), timeouts and connection
// errors are retried with capped exponential backoff; any other status
// is terminal. Exhaustion reports ERROR with the last failure.
func (p *Prober) Probe(ctx context.Context, target Target) Result {
	started := time.Now()
	res := Result{
		Name: target.Name,
		URL:  target.URL,
	}

	var lastType, lastErr string
	for attempt := 0; ; attempt++ {
		res.Attempts++

		status, err := p.fetch(ctx, target.URL)
		if err == nil && !retryableStatus(status) {
			res.Status = strconv.Itoa(status)
			res.ElapsedMs = time.Since(started).Milliseconds()
			p.report(target, res, started)
			return res
		}

		if err != nil {
			lastType = classifyError(err)
			lastErr = err.Error()
		} else {
			lastType = ErrorTypeStatus
			lastErr = fmt.Sprintf("unhealthy status: %d", status)
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"target", target.Name,
			"attempt", res.Attempts,
			"error_type", lastType,
			"err", lastErr)

		if attempt >= p.cfg.Retries {
			break
		}
		if !p.sleep(ctx, attempt) {
			break
		}
	}

	res.Status = StatusError
	res.ErrorType = lastType
	res.Error = lastErr
	res.ElapsedMs = time.Since(started).Milliseconds()
	p.report(target, res, started)
	return res
}

func (p *Prober) fetch(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// sleep waits the backoff for the attempt, false when the context is done
func (p *Prober) sleep(ctx context.Context, attempt int) bool {
	wait := p.cfg.InitialBackoff << uint(attempt)
	if wait > p.cfg.MaxBackoff || wait <= 0 {
		wait = p.cfg.MaxBackoff
	}
	if p.cfg.Jitter > 0 {
		wait += time.Duration(rand.Float64() * p.cfg.Jitter * float64(wait))
	}

	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Prober) report(target Target, res Result, started time.Time) {
	tags := []metrics.Tag{
		{Name: "target", Value: target.Name},
		{Name: "status", Value: res.Status},
	}
	metrics.MeasureSince(keyForProbePerf, started, tags...)
	if !res.Succeeded() {
		metrics.IncrCounter(keyForProbeFailed, 1, tags...)
		logger.KV(xlog.WARNING,
			"target", target.Name,
			"status", res.Status,
			"attempts", res.Attempts,
			"error_type", res.ErrorType,
			"err", res.Error)
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func classifyError(err error) string {
	if httperror.IsTimeout(err) {
		return ErrorTypeTimeout
	}
	return ErrorTypeConnection
}
