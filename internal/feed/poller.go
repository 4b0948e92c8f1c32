// File: internal/feed/poller.go
// Brief: Internal feed package implementation for 'live polling'.

package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poller runs a callback on a fixed interval and owns at most one ticker at a
// time. Stopping releases the ticker immediately; a tick that is already
// running finishes on its own and is never followed by another one.
type Poller struct {
	mu     sync.Mutex
	onTick func(context.Context)
	parent context.Context
	active atomic.Pointer[pollLoop]
}

type pollLoop struct {
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Running reports whether a loop is active. It never blocks.
func (p *Poller) Running() bool {
	l := p.active.Load()
	if l == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Interval returns the interval of the active loop, or zero when idle.
func (p *Poller) Interval() time.Duration {
	l := p.active.Load()
	if l == nil || !p.Running() {
		return 0
	}
	return l.interval
}

// Start fires onTick immediately and then every interval until Stop or ctx is
// done. A loop that is already running is stopped first.
func (p *Poller) Start(ctx context.Context, interval time.Duration, onTick func(context.Context)) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.parent = ctx
	p.onTick = onTick
	p.startLocked(interval)
	return nil
}

// SetInterval restarts a running loop with a new interval and an immediate
// tick. It is a no-op while idle.
func (p *Poller) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Running() {
		return nil
	}
	p.stopLocked()
	p.startLocked(interval)
	return nil
}

// Stop releases the ticker. Safe to call when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) startLocked(interval time.Duration) {
	l := &pollLoop{
		interval: interval,
		ticker:   time.NewTicker(interval),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.active.Store(l)
	go l.run(p.parent, p.onTick)
}

func (p *Poller) stopLocked() {
	if l := p.active.Swap(nil); l != nil {
		l.halt()
	}
}

func (l *pollLoop) halt() {
	l.once.Do(func() {
		l.ticker.Stop()
		close(l.stop)
	})
}

func (l *pollLoop) halted() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *pollLoop) run(ctx context.Context, onTick func(context.Context)) {
	defer close(l.done)
	defer l.halt()
	onTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-l.ticker.C:
			if l.halted() || ctx.Err() != nil {
				return
			}
			onTick(ctx)
		}
	}
}
