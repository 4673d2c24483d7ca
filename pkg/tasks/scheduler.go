package tasks

import (
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

// DefaultTickerInterval for scheduler
const DefaultTickerInterval = time.Second

// Scheduler defines the scheduler interface
type Scheduler interface {
	// Add adds a task to a pool of scheduled tasks
	Add(Task) Scheduler
	// Get returns the task by id,
	// returns nil if task not found
	Get(id string) Task
	// List returns all registered tasks
	List() []Task
	// Clear will delete all scheduled tasks
	Clear()
	// Count returns the number of registered tasks
	Count() int
	// IsRunning returns the status
	IsRunning() bool
	// Start all the pending tasks
	Start() error
	// Stop the scheduler
	Stop() error
}

// scheduler provides a task scheduler functionality
type scheduler struct {
	dops options

	tasks   []Task
	running bool
	quit    chan bool
	lock    sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(ops ...Option) Scheduler {
	s := &scheduler{
		tasks: []Task{},
		quit:  make(chan bool, 1),
	}

	for _, op := range ops {
		op.apply(&s.dops)
	}

	return s
}

// Count returns the number of registered tasks
func (s *scheduler) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.tasks)
}

func (s *scheduler) getRunnableTasks() []Task {
	s.lock.RLock()
	defer s.lock.RUnlock()

	runnable := []Task{}
	for _, j := range s.tasks {
		if j.ShouldRun() {
			runnable = append(runnable, j)
		}
	}
	return runnable
}

// List returns all registered tasks
func (s *scheduler) List() []Task {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.tasks[:]
}

// Add adds a task to a pool of scheduled tasks
func (s *scheduler) Add(j Task) Scheduler {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tasks = append(s.tasks, j)
	return s
}

// Get returns the task by id
func (s *scheduler) Get(id string) Task {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, t := range s.tasks {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// runPending will run all the tasks that are scheduled to run.
func (s *scheduler) runPending() {
	for _, task := range s.getRunnableTasks() {
		logger.KV(xlog.DEBUG, "status", "pending_run", "task", task.Name())
		go task.Run()
	}
}

// Clear will delete all scheduled tasks
func (s *scheduler) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tasks = []Task{}
}

// IsRunning returns the status
func (s *scheduler) IsRunning() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.running
}

// Start all the pending tasks, driven by a ticker
func (s *scheduler) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.running {
		return errors.Errorf("scheduler already started")
	}
	s.running = true

	interval := s.dops.tickerInterval
	if interval == 0 {
		// if not specified, then find a reasonable interval
		interval = DefaultTickerInterval
		for _, t := range s.tasks {
			if in := t.Interval() / 10; in > 0 && in < interval {
				interval = in
			}
		}
	}

	logger.KV(xlog.DEBUG,
		"tasks", len(s.tasks),
		"schedule_interval", interval,
	)

	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.runPending()
			case <-s.quit:
				ticker.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop the scheduler
func (s *scheduler) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.running {
		return errors.Errorf("the scheduler is not running")
	}
	s.running = false
	s.quit <- true

	return nil
}

// Option configures how we set up the scheduler and tasks
type Option interface {
	apply(*options)
}

type options struct {
	tickerInterval time.Duration
	id             string
	runTimeout     time.Duration
	initialDelay   time.Duration
}

type funcOption struct {
	f func(*options)
}

func (fo *funcOption) apply(o *options) {
	fo.f(o)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithTickerInterval option to provide ticker interval
func WithTickerInterval(tickerInterval time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.tickerInterval = tickerInterval
	})
}

// WithID option to provide ID
func WithID(id string) Option {
	return newFuncOption(func(o *options) {
		o.id = id
	})
}

// WithRunTimeout option to provide run timeout
func WithRunTimeout(runTimeout time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.runTimeout = runTimeout
	})
}

// WithInitialDelay option to delay the first run after Start
func WithInitialDelay(d time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.initialDelay = d
	})
}
