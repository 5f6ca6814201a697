package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/observability/tracing"
)

const (
	DefaultTaskName       = "update_progress"
	DefaultPollInterval   = 6 * time.Second
	DefaultLockTimeout    = 60 * time.Second
	DefaultReleaseTimeout = 3 * time.Second
)

// WorkFunc is one lock-guarded unit of work.
type WorkFunc func(ctx context.Context) error

// RunnerConfig controls a periodic runner.
type RunnerConfig struct {
	// Name is both the task label and the lock name.
	Name         string
	PollInterval time.Duration
	LockTimeout  time.Duration
	// Token identifies this runner across the fleet. A UUID is generated when empty.
	Token string
	// ReleaseTimeout bounds the cleanup release, which runs even after ctx is cancelled.
	ReleaseTimeout time.Duration
}

func (c *RunnerConfig) normalize() {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultTaskName
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if strings.TrimSpace(c.Token) == "" {
		c.Token = NewOwnerToken()
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = DefaultReleaseTimeout
	}
}

// Runner repeatedly tries to take its lock and runs work only while holding it. Ticks
// of one runner never overlap; ticks across processes are serialized by the lock.
type Runner struct {
	lock   *DistributedLock
	work   WorkFunc
	log    logger.Logger
	config RunnerConfig

	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRunner builds a runner whose lock is named after the task.
func NewRunner(provider LockProvider, work WorkFunc, log logger.Logger, cfg RunnerConfig) (*Runner, error) {
	if work == nil {
		return nil, schedulerError(ErrInvalidArgument, "work func is required")
	}
	if log == nil {
		return nil, schedulerError(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()

	lock, err := NewDistributedLock(provider, cfg.Name, cfg.Token, cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	return &Runner{
		lock:   lock,
		work:   work,
		log:    log.With("task", cfg.Name),
		config: cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Token returns the owner token used for the lock.
func (r *Runner) Token() string {
	return r.lock.Token()
}

// Start launches the loop on its own goroutine. It stops when Stop is called or ctx is
// cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if ctx == nil {
		return schedulerError(ErrInvalidArgument, "context is required")
	}
	if !r.started.CompareAndSwap(false, true) {
		return schedulerError(ErrConflict, "runner already started")
	}
	go r.loop(ctx)
	return nil
}

// Run starts the loop and blocks until it exits.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-r.done
	return nil
}

// Stop sets the stop flag and interrupts a pending wait. It is safe to call repeatedly
// and from any goroutine.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		close(r.stopCh)
	})
}

// Done is closed once the loop has exited and its last cleanup has run. A runner that
// was never started never closes Done.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.log.Info("periodic runner started",
		"token", r.lock.Token(),
		"poll_interval", r.config.PollInterval,
		"lock_timeout", r.config.LockTimeout,
	)
	for !r.stopRequested(ctx) {
		r.tick(ctx)
		if r.stopRequested(ctx) || !r.wait(ctx) {
			break
		}
	}
	r.log.Info("periodic runner stopped", "token", r.lock.Token())
}

func (r *Runner) stopRequested(ctx context.Context) bool {
	return r.stopping.Load() || ctx.Err() != nil
}

func (r *Runner) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.config.PollInterval)
	defer timer.Stop()

	select {
	case <-r.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// tick runs one Attempting -> {Working, Waiting} step. The release in the deferred
// cleanup runs for every outcome, including a failed acquire whose write may have
// landed on the server.
func (r *Runner) tick(ctx context.Context) string {
	ctx, span := tracing.StartRunnerTickSpan(ctx, r.config.Name, r.lock.Token())
	defer span.End()
	defer r.release(ctx)

	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		r.log.Error("lock acquire failed", "error", err)
		recordRunnerTick(r.config.Name, outcomeAcquireError)
		return outcomeAcquireError
	}
	if !acquired {
		r.log.Debug("lock held elsewhere, skipping tick")
		recordRunnerTick(r.config.Name, outcomeSkipped)
		return outcomeSkipped
	}

	start := time.Now()
	err = r.runWork(ctx)
	observeRunnerWork(r.config.Name, time.Since(start).Seconds())
	if err != nil {
		tracing.RecordError(span, err)
		r.log.Error("periodic work failed", "error", err)
		recordRunnerTick(r.config.Name, outcomeFailed)
		return outcomeFailed
	}
	recordRunnerTick(r.config.Name, outcomeWorked)
	return outcomeWorked
}

// runWork bounds work by the lease duration so the lease cannot lapse mid-pass unnoticed.
func (r *Runner) runWork(ctx context.Context) (err error) {
	workCtx, cancel := context.WithTimeout(ctx, r.config.LockTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("work panicked: %v", p)
		}
	}()
	err = r.work(workCtx)
	if err == nil && errors.Is(workCtx.Err(), context.DeadlineExceeded) {
		r.log.Warn("periodic work outlived lock timeout")
	}
	return err
}

func (r *Runner) release(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.ReleaseTimeout)
	defer cancel()

	if err := r.lock.Release(releaseCtx); err != nil {
		r.log.Error("lock release failed", "error", err)
		recordRunnerReleaseError(r.config.Name)
	}
}
