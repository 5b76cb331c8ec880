// Package attach owns the registration state and the background worker
// that converges the agent's message-bus attachment with that state.
package attach

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/mixer/clock"
)

const defaultRetryInterval = 60 * time.Second

// Validator re-checks consumer registration against the entitlement
// server and updates the shared State.
type Validator interface {
	ValidateRegistration(ctx context.Context) error
}

// Plugin is the surface the worker drives once validation settles.
type Plugin interface {
	// SendEnabledReport is best-effort; failures are logged and swallowed
	// by the implementation.
	SendEnabledReport(ctx context.Context)
	// UpdateSettings refreshes the messaging settings from local
	// configuration and the consumer identity.
	UpdateSettings(ctx context.Context) error
	// Attach signals the host runtime to attach to the message bus.
	Attach() error
	// Detach signals the host runtime to detach from the message bus.
	Detach() error
}

// Worker serializes validate, report, update-settings, and attach/detach.
// On any failure it retries the whole sequence after a fixed delay,
// without bound, until the sequence completes or the context is canceled.
// It runs in the background so plugin initialization never blocks on the
// entitlement server.
type Worker struct {
	logger        log.Logger
	clock         clock.Clock
	retryInterval time.Duration
	state         *State
	validator     Validator
	plugin        Plugin

	// Serializes concurrent triggers (startup plus certificate changes).
	runMutex sync.Mutex
}

type WorkerOption func(*Worker)

// WithClock sets the clock used for the retry delay. Pass a mock clock in
// tests.
func WithClock(c clock.Clock) WorkerOption {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithRetryInterval overrides the fixed delay between attempts.
func WithRetryInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retryInterval = interval
	}
}

func NewWorker(logger log.Logger, state *State, validator Validator, plugin Plugin, opts ...WorkerOption) *Worker {
	w := &Worker{
		logger:        log.With(logger, "component", "attach_worker"),
		clock:         clock.DefaultClock{},
		retryInterval: defaultRetryInterval,
		state:         state,
		validator:     validator,
		plugin:        plugin,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run executes the attach sequence until it completes or ctx is canceled.
// Call it from its own goroutine; overlapping calls are serialized.
func (w *Worker) Run(ctx context.Context) {
	w.runMutex.Lock()
	defer w.runMutex.Unlock()

	ticker := w.clock.NewTicker(w.retryInterval)
	defer ticker.Stop()

	for {
		err := w.runOnce(ctx)
		if err == nil {
			return
		}

		level.Warn(w.logger).Log(
			"msg", "attach sequence failed, will retry",
			"retry_interval", w.retryInterval,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			// Try again.
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	if err := w.validator.ValidateRegistration(ctx); err != nil {
		return err
	}

	if !w.state.Registered() {
		level.Info(w.logger).Log("msg", "consumer not registered, detaching")
		return w.plugin.Detach()
	}

	w.plugin.SendEnabledReport(ctx)

	if err := w.plugin.UpdateSettings(ctx); err != nil {
		return err
	}

	level.Info(w.logger).Log(
		"msg", "consumer registered, attaching",
		"consumer_id", w.state.ConsumerID(),
	)

	return w.plugin.Attach()
}
