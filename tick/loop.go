// Package tick drives tickables from one goroutine.
//
// A Loop holds an ordered set of tickables. TickAll calls each of them once,
// in registration order, on the calling goroutine. It is the only point where
// events queued by transport goroutines become user callbacks.
package tick

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/internal/logging"
	"github.com/luciancaetano/tickwire/metrics"
)

type entry struct {
	t       tickwire.Tickable
	removed bool
}

// Loop is an ordered registry of tickables.
//
// Register and Unregister may be called from any goroutine, including from
// inside a Tick.
type Loop struct {
	mu      sync.Mutex
	entries []*entry
	index   map[tickwire.Tickable]*entry
	dead    int

	logger  tickwire.Logger
	metrics *metrics.Collector
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger for recovered tick panics.
func WithLogger(logger tickwire.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMetrics enables tick duration metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// NewLoop creates an empty loop.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		index:  make(map[tickwire.Tickable]*entry),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register appends t to the loop. Registering t twice has no effect.
//
// t must be a comparable value; pointers are the usual choice.
func (l *Loop) Register(t tickwire.Tickable) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[t]; ok {
		return
	}
	e := &entry{t: t}
	l.index[t] = e
	l.entries = append(l.entries, e)
}

// Unregister removes t. If a TickAll pass is running and has not reached t
// yet, t is skipped in that pass. Unregistering an unknown t has no effect.
func (l *Loop) Unregister(t tickwire.Tickable) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.index[t]
	if !ok {
		return
	}
	delete(l.index, t)
	e.removed = true
	l.dead++

	if l.dead > len(l.entries)/2 {
		l.compact()
	}
}

// compact drops removed entries. A running pass keeps its own snapshot slice,
// so rebuilding l.entries does not disturb it.
func (l *Loop) compact() {
	live := make([]*entry, 0, len(l.entries)-l.dead)
	for _, e := range l.entries {
		if !e.removed {
			live = append(live, e)
		}
	}
	l.entries = live
	l.dead = 0
}

// Len returns the number of registered tickables.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.index)
}

// TickAll ticks every registered tickable once, in registration order.
//
// Tickables registered during the pass are first ticked in the next pass.
// A panicking tickable is logged and does not stop the pass.
func (l *Loop) TickAll() {
	start := time.Now()

	l.mu.Lock()
	snapshot := append([]*entry(nil), l.entries...)
	l.mu.Unlock()

	for _, e := range snapshot {
		if l.isRemoved(e) {
			continue
		}
		l.tickOne(e.t)
	}

	l.metrics.ObserveTick(time.Since(start))
}

func (l *Loop) isRemoved(e *entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return e.removed
}

func (l *Loop) tickOne(t tickwire.Tickable) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("tick panicked", "tickable", fmt.Sprintf("%T", t), "panic", p)
		}
	}()
	t.Tick()
}

// Run calls TickAll every interval until ctx is done.
func (l *Loop) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("tick: interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.TickAll()
		}
	}
}

// Func adapts a function to tickwire.Tickable. Register a *Func, since func
// values are not comparable.
type Func func()

func (f *Func) Tick() { (*f)() }
