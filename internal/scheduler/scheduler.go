// Package scheduler fires keyed one-shot and interval actions at wall-clock times.
//
// The registry is in memory only. Callers rebuild it from durable state after a restart.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned when scheduling on a scheduler that has been shut down.
var ErrClosed = errors.New("scheduler is shut down")

// Action is the work a job performs. A returned error is logged and does not affect other jobs.
type Action func(ctx context.Context) error

// Job is a one-shot action. Scheduling a job whose Key is already registered replaces it.
type Job struct {
	Key    string
	RunAt  time.Time
	Action Action
}

// JobInfo describes a registered job.
type JobInfo struct {
	Key      string        `json:"key"`
	RunAt    time.Time     `json:"run_at"`
	Interval time.Duration `json:"interval,omitempty"`
}

type entry struct {
	job      Job
	interval time.Duration
	gen      uint64
	timer    *time.Timer
}

// Options configures a Scheduler.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock used to compute delays.
	Now func() time.Time
	// OnFinish is called after every run with the job key and the action's error.
	OnFinish func(key string, err error)
}

// Scheduler owns the job registry. Each firing runs on its own goroutine.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	paused  bool
	closed  bool

	now      func() time.Time
	logger   *slog.Logger
	onFinish func(string, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a running scheduler.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		entries:  make(map[string]*entry),
		now:      opts.Now,
		logger:   opts.Logger,
		onFinish: opts.OnFinish,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Schedule registers job, superseding any job with the same key.
// A RunAt in the past fires as soon as possible.
func (s *Scheduler) Schedule(job Job) error {
	if job.Key == "" {
		return fmt.Errorf("job key is required")
	}
	if job.Action == nil {
		return fmt.Errorf("job %s has no action", job.Key)
	}
	return s.register(job, 0)
}

// Every registers an interval job. The first run is one interval from now.
func (s *Scheduler) Every(key string, interval time.Duration, action Action) error {
	if interval <= 0 {
		return fmt.Errorf("interval for %s must be positive", key)
	}
	if action == nil {
		return fmt.Errorf("job %s has no action", key)
	}
	return s.register(Job{Key: key, RunAt: s.now().Add(interval), Action: action}, interval)
}

func (s *Scheduler) register(job Job, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if old, ok := s.entries[job.Key]; ok && old.timer != nil {
		old.timer.Stop()
	}

	s.gen++
	e := &entry{job: job, interval: interval, gen: s.gen}
	s.entries[job.Key] = e
	if !s.paused {
		s.arm(e)
	}

	s.logger.Debug("job scheduled", "key", job.Key, "run_at", job.RunAt, "interval", interval)
	return nil
}

// arm starts the timer for e. Caller holds s.mu.
func (s *Scheduler) arm(e *entry) {
	delay := e.job.RunAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	key, gen := e.job.Key, e.gen
	e.timer = time.AfterFunc(delay, func() { s.fire(key, gen) })
}

func (s *Scheduler) fire(key string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen || s.paused || s.closed {
		s.mu.Unlock()
		return
	}
	action := e.job.Action
	if e.interval > 0 {
		e.job.RunAt = s.now().Add(e.interval)
		s.arm(e)
	} else {
		delete(s.entries, key)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.run(key, action)
}

func (s *Scheduler) run(key string, action Action) {
	var err error
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "key", key, "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			s.logger.Error("job failed", "key", key, "error", err, "duration", time.Since(start))
		} else {
			s.logger.Info("job finished", "key", key, "duration", time.Since(start))
		}
		if s.onFinish != nil {
			s.onFinish(key, err)
		}
	}()

	s.logger.Info("job fired", "key", key)
	err = action(s.ctx)
}

// Cancel removes a registered job. It reports whether the key was registered.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, key)
	return true
}

// Pause stops all firing. Registrations are kept.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}
	s.paused = true
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.logger.Info("scheduler paused", "pending", len(s.entries))
}

// Resume re-arms every registration. Jobs that came due while paused fire immediately.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused || s.closed {
		return
	}
	s.paused = false
	for _, e := range s.entries {
		s.arm(e)
	}
	s.logger.Info("scheduler resumed", "pending", len(s.entries))
}

// Enabled reports whether the scheduler is firing jobs.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.paused && !s.closed
}

// Pending lists registered jobs ordered by next run time.
func (s *Scheduler) Pending() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, JobInfo{Key: e.job.Key, RunAt: e.job.RunAt, Interval: e.interval})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown stops all timers, cancels running actions and waits for them to return.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
