// Package shutdown runs the process stop sequence once, on SIGINT/SIGTERM or on demand.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/resilience"
)

const (
	DefaultGracePeriod = time.Second
	DefaultHookTimeout = 5 * time.Second
)

// Config bounds each step of the sequence.
type Config struct {
	// GracePeriod is the longest wait for the stopper to finish.
	GracePeriod time.Duration
	// HookTimeout bounds every hook individually.
	HookTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{GracePeriod: DefaultGracePeriod, HookTimeout: DefaultHookTimeout}
}

// Stopper is a background worker that can be asked to stop.
type Stopper interface {
	Stop()
	Done() <-chan struct{}
}

// HookFunc is a cleanup step.
type HookFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   HookFunc
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithStopper sets the worker stopped after cleanup hooks.
func WithStopper(s Stopper) Option {
	return func(c *Coordinator) { c.stopper = s }
}

// WithExit replaces os.Exit.
func WithExit(exit func(code int)) Option {
	return func(c *Coordinator) {
		if exit != nil {
			c.exit = exit
		}
	}
}

// Coordinator owns the stop sequence:
//  1. cleanup hooks, each bounded by HookTimeout;
//  2. Stopper.Stop;
//  3. wait up to GracePeriod for Stopper.Done;
//  4. finalizers;
//  5. exit(0).
//
// A failing or hanging step is logged and never blocks the next one.
type Coordinator struct {
	config  Config
	log     logger.Logger
	stopper Stopper
	exit    func(code int)

	mu         sync.Mutex
	hooks      []hook
	finalizers []hook

	once sync.Once
	done chan struct{}
}

// NewCoordinator creates a coordinator. Zero config values take the defaults.
func NewCoordinator(cfg Config, log logger.Logger, opts ...Option) *Coordinator {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = DefaultHookTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	c := &Coordinator{
		config: cfg,
		log:    log,
		exit:   os.Exit,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterHook adds a cleanup step that runs before the stopper is stopped. Hooks run in
// registration order.
func (c *Coordinator) RegisterHook(name string, fn HookFunc) {
	c.register(&c.hooks, name, fn)
}

// RegisterFinalizer adds a step that runs after the grace wait, such as closing pools the
// stopper still used.
func (c *Coordinator) RegisterFinalizer(name string, fn HookFunc) {
	c.register(&c.finalizers, name, fn)
}

func (c *Coordinator) register(list *[]hook, name string, fn HookFunc) {
	if fn == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unnamed"
	}
	c.mu.Lock()
	*list = append(*list, hook{name: name, fn: fn})
	c.mu.Unlock()
}

// Listen subscribes to SIGINT and SIGTERM and runs Shutdown on the first one. Later
// signals are absorbed. Listening ends when ctx is cancelled.
func (c *Coordinator) Listen(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				c.log.Info("received interrupt signal, shutting down", "signal", sig.String())
				go c.Shutdown()
			}
		}
	}()
}

// Shutdown runs the sequence. Only the first call does anything; later calls return
// immediately.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		start := time.Now()
		c.mu.Lock()
		hooks := append([]hook(nil), c.hooks...)
		finalizers := append([]hook(nil), c.finalizers...)
		c.mu.Unlock()

		c.runHooks("shutdown hook", hooks)

		if c.stopper != nil {
			c.stopper.Stop()
			c.awaitStopper()
		}

		c.runHooks("shutdown finalizer", finalizers)

		c.log.Info("shutdown complete", "duration", time.Since(start))
		close(c.done)
		c.exit(0)
	})
}

// Done is closed once the sequence has finished, right before exit is called.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) awaitStopper() {
	timer := time.NewTimer(c.config.GracePeriod)
	defer timer.Stop()

	select {
	case <-c.stopper.Done():
		c.log.Info("background worker stopped")
	case <-timer.C:
		c.log.Warn("background worker still running after grace period", "grace_period", c.config.GracePeriod)
	}
}

func (c *Coordinator) runHooks(kind string, hooks []hook) {
	for _, h := range hooks {
		c.log.Info(kind+" start", "hook", h.name)
		if err := c.runHook(h); err != nil {
			c.log.Error(kind+" failed", "hook", h.name, "error", err)
			continue
		}
		c.log.Info(kind+" complete", "hook", h.name)
	}
}

// runHook returns once fn returns or the hook timeout elapses, whichever comes first. A
// hook that ignores its context is abandoned, not waited for.
func (c *Coordinator) runHook(h hook) error {
	err := resilience.WithTimeout(context.Background(), c.config.HookTimeout, h.fn)
	if errors.Is(err, resilience.ErrTimeout) {
		return fmt.Errorf("hook %q timed out after %s", h.name, c.config.HookTimeout)
	}
	return err
}
