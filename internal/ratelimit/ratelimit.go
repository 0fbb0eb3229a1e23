// Package ratelimit counts attempts per identity and action in fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter decides whether one more attempt fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, identity, action string) (bool, error)
}

type Options struct {
	Limit  int
	Window time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Window <= 0 {
		o.Window = time.Minute
	}
	return o
}

// windowKey names the counter for the window containing t.
func windowKey(identity, action string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", action, identity, t.UnixNano()/int64(window))
}

// Memory keeps counters in process. Suitable for a single node and tests.
type Memory struct {
	opts Options

	mu     sync.Mutex
	counts map[string]int
	window int64
}

func NewMemory(opts Options) *Memory {
	return &Memory{opts: opts.withDefaults(), counts: make(map[string]int)}
}

func (m *Memory) Allow(_ context.Context, identity, action string) (bool, error) {
	if m.opts.Limit <= 0 {
		return true, nil
	}
	now := m.opts.Now()
	current := now.UnixNano() / int64(m.opts.Window)

	m.mu.Lock()
	defer m.mu.Unlock()
	if current != m.window {
		// a new window starts every counter from zero
		m.counts = make(map[string]int)
		m.window = current
	}
	key := windowKey(identity, action, now, m.opts.Window)
	m.counts[key]++
	return m.counts[key] <= m.opts.Limit, nil
}
