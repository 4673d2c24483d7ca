// Package tasks provides an in-process scheduler for periodic work,
// such as the downstream warm-up cycle. Tasks run on a fixed interval,
// never reentrantly, and a panicking task never takes the scheduler down.
package tasks

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/effective-security/x/guid"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/pkg", "tasks")

// TimeNow is a function that returns the current time
var TimeNow = time.Now

// Task defines task interface
type Task interface {
	// ID returns the id of the task
	ID() string
	// Name returns a name of the task
	Name() string
	// RunCount specifies the number of times the task executed
	RunCount() uint32
	// Interval returns the time between runs
	Interval() time.Duration
	// NextRunAt returns the time of the next scheduled run
	NextRunAt() time.Time
	// ShouldRun returns true if the task should be run now
	ShouldRun() bool
	// Run will try to run the task, if it's not already running,
	// and immediately reschedule it after the run
	Run() bool
	// SetNextRun updates next schedule time
	SetNextRun(after time.Duration) Task
	// IsRunning returns the status
	IsRunning() bool
}

// task describes a scheduled callback
type task struct {
	id       string
	name     string
	interval time.Duration
	callback func()

	lastRunAt *time.Time
	nextRunAt time.Time
	runCount  uint32

	runLock    chan struct{}
	running    atomic.Bool
	runTimeout time.Duration
}

// DefaultRunTimeoutInterval specifies a timeout for a task to start
const DefaultRunTimeoutInterval = time.Second

// NewTask creates a task that runs callback every interval.
// The first run is due after initialDelay.
func NewTask(name string, interval time.Duration, callback func(), ops ...Option) Task {
	dops := options{
		runTimeout: DefaultRunTimeoutInterval,
	}
	for _, op := range ops {
		op.apply(&dops)
	}

	t := &task{
		id:         values.StringsCoalesce(dops.id, guid.MustCreate()),
		name:       name,
		interval:   interval,
		callback:   callback,
		runLock:    make(chan struct{}, 1),
		runTimeout: dops.runTimeout,
		nextRunAt:  TimeNow().Add(dops.initialDelay),
	}
	return t
}

// ID returns the id of the task
func (j *task) ID() string {
	return j.id
}

// Name returns a name of the task
func (j *task) Name() string {
	return j.name
}

// Interval returns the time between runs
func (j *task) Interval() time.Duration {
	return j.interval
}

// NextRunAt returns the time of the next scheduled run
func (j *task) NextRunAt() time.Time {
	return j.nextRunAt
}

// RunCount specifies the number of times the task executed
func (j *task) RunCount() uint32 {
	return atomic.LoadUint32(&j.runCount)
}

// ShouldRun returns true if the task should be run now
func (j *task) ShouldRun() bool {
	return !j.running.Load() && TimeNow().After(j.nextRunAt)
}

// IsRunning returns the status
func (j *task) IsRunning() bool {
	return j.running.Load()
}

// SetNextRun updates next schedule time
func (j *task) SetNextRun(after time.Duration) Task {
	j.nextRunAt = TimeNow().Add(after)
	return j
}

// Run will try to run the task, if it's not already running,
// and immediately reschedule it after the run
func (j *task) Run() bool {
	timeout := j.runTimeout
	if timeout == 0 {
		timeout = DefaultRunTimeoutInterval
	}

	select {
	case j.runLock <- struct{}{}:
		now := TimeNow()
		j.lastRunAt = &now
		j.running.Store(true)
		count := atomic.AddUint32(&j.runCount, 1)

		logger.KV(xlog.DEBUG,
			"status", "running",
			"run_count", count,
			"task", j.name)

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.KV(xlog.ERROR,
						"reason", "panic",
						"task", j.name,
						"err", r,
						"stack", string(debug.Stack()))
				}
			}()
			j.callback()
		}()

		j.running.Store(false)
		j.nextRunAt = j.lastRunAt.Add(j.interval)

		<-j.runLock
		return true
	case <-time.After(timeout):
	}

	logger.KV(xlog.DEBUG,
		"status", "already_running",
		"task", j.name)

	return false
}
