package myelectric

import (
	"sync"
	"time"
)

// fakeClock is a manually driven clock that tracks how many tickers are live.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*fakeTicker]struct{}
	maxLive int
	created int
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{
		now:     now,
		tickers: make(map[*fakeTicker]struct{}),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) NewTicker(d time.Duration) ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, c: make(chan time.Time, 1)}
	c.tickers[t] = struct{}{}
	c.created++
	if len(c.tickers) > c.maxLive {
		c.maxLive = len(c.tickers)
	}
	return t
}

// Tick fires every live ticker and returns how many fired.
func (c *fakeClock) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t := range c.tickers {
		select {
		case t.c <- c.now:
		default:
		}
	}
	return len(c.tickers)
}

func (c *fakeClock) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) MaxLive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxLive
}

func (c *fakeClock) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

type fakeTicker struct {
	clock *fakeClock
	c     chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t)
}
