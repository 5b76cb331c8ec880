// Package pathmon provides a polling file monitor. Registered callbacks
// are invoked with the changed path whenever the content at that path
// changes, including creation and deletion.
package pathmon

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/mixer/clock"
)

const defaultInterval = 3 * time.Second

// Callback is invoked with the path whose content changed.
type Callback func(path string)

type watch struct {
	path     string
	callback Callback
	digest   string
}

// Monitor polls a set of paths and dispatches callbacks on change.
type Monitor struct {
	logger   log.Logger
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	watches []*watch

	done chan struct{}
}

type Option func(*Monitor)

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		m.interval = interval
	}
}

// WithClock sets the clock used for polling. Pass a mock clock in tests.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

func New(logger log.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		logger:   log.With(logger, "component", "path_monitor"),
		clock:    clock.DefaultClock{},
		interval: defaultInterval,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Add registers a callback for path. The current content is snapshotted so
// only changes after registration fire the callback. A missing file is a
// valid snapshot; its later creation counts as a change.
func (m *Monitor) Add(path string, callback Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watches = append(m.watches, &watch{
		path:     path,
		callback: callback,
		digest:   digest(path),
	})
}

// Execute polls until Interrupt is called. It is shaped for use as an
// oklog/run group actor.
func (m *Monitor) Execute() error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return nil
		case <-ticker.Chan():
			m.scan()
		}
	}
}

// Interrupt stops the monitor.
func (m *Monitor) Interrupt(_ error) {
	close(m.done)
}

func (m *Monitor) scan() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.watches {
		current := digest(w.path)
		if current == w.digest {
			continue
		}

		level.Info(m.logger).Log(
			"msg", "path changed",
			"path", w.path,
		)

		w.digest = current
		w.callback(w.path)
	}
}

// digest returns a content hash for path. An unreadable or missing file
// hashes to the empty string, so deletion registers as a change.
func digest(path string) string {
	contents, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])
}
