package probe

import (
	"context"
	"time"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"

	"github.com/fitpulse/gateway/pkg/tasks"
)

// Warm-up modes
const (
	WarmupSerial     = "serial"
	WarmupConcurrent = "concurrent"
)

// WarmupConfig specifies the scheduled warm-up of the downstream fleet
type WarmupConfig struct {
	// Enabled turns the scheduled warm-up on
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Mode is serial or concurrent; serial probes the targets in their
	// configured order with TargetDelay between them
	Mode string `json:"mode" yaml:"mode"`

	// InitialDelay postpones the first cycle after server start
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`

	// Interval between warm-up cycles
	Interval time.Duration `json:"interval" yaml:"interval"`

	// TargetDelay is the pause between targets in serial mode
	TargetDelay time.Duration `json:"target_delay" yaml:"target_delay"`
}

const (
	defaultWarmupInterval = 5 * time.Minute
	defaultInitialDelay   = 30 * time.Second
)

// NewWarmupTask returns a scheduled task running warm-up cycles with
// the prober. The task is not started, add it to a tasks.Scheduler.
func NewWarmupTask(cfg *WarmupConfig, prober *Prober) (tasks.Task, error) {
	if cfg.Mode != "" && cfg.Mode != WarmupSerial && cfg.Mode != WarmupConcurrent {
		return nil, errors.Errorf("unsupported warm-up mode: %s", cfg.Mode)
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = defaultWarmupInterval
	}
	delay := cfg.InitialDelay
	if delay == 0 {
		delay = defaultInitialDelay
	}

	run := func() {
		runWarmup(context.Background(), cfg.Mode, cfg.TargetDelay, prober)
	}
	return tasks.NewTask("downstream_warmup", interval, run,
		tasks.WithInitialDelay(delay)), nil
}

// runWarmup executes one warm-up cycle. It never fails: per-target
// outcomes are logged and reported through the prober metrics.
func runWarmup(ctx context.Context, mode string, targetDelay time.Duration, prober *Prober) {
	started := time.Now()

	var results []Result
	if mode == WarmupSerial {
		targets := prober.Targets()
		for i, target := range targets {
			results = append(results, prober.Probe(ctx, target))
			if targetDelay > 0 && i < len(targets)-1 {
				time.Sleep(targetDelay)
			}
		}
	} else {
		results = prober.ProbeAll(ctx)
	}

	healthy := 0
	for _, res := range results {
		if res.Succeeded() {
			healthy++
		}
	}

	logger.KV(xlog.INFO,
		"status", "warmup_completed",
		"mode", mode,
		"targets", len(results),
		"healthy", healthy,
		"elapsed", time.Since(started).String())
}
