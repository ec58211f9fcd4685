package clock

import (
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests. Every After call advances the
// fake time by its duration and fires at once, so scheduled pauses cost
// nothing while still being observable through Waits and Elapsed. Tickers only
// fire when Tick is called.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	start   time.Time
	current time.Time
	waits   []time.Duration
	tickers map[*fakeTicker]struct{}
}

type fakeTicker struct {
	ch chan time.Time
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{
		start:   initial,
		current: initial,
		tickers: make(map[*fakeTicker]struct{}),
	}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d > 0 {
		c.current = c.current.Add(d)
		c.waits = append(c.waits, d)
	}
	ch <- c.current
	return ch
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ft := &fakeTicker{ch: make(chan time.Time, 1)}
	c.mu.Lock()
	c.tickers[ft] = struct{}{}
	c.mu.Unlock()
	return &Ticker{
		C: ft.ch,
		stopFunc: func() {
			c.mu.Lock()
			delete(c.tickers, ft)
			c.mu.Unlock()
		},
	}
}

// Tick delivers one tick to every live ticker, dropping it for tickers whose
// previous tick is still unread.
func (c *FakeClock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ft := range c.tickers {
		select {
		case ft.ch <- c.current:
		default:
		}
	}
}

// Waits returns every positive duration passed to After, in call order.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// Elapsed is the total fake time advanced since construction.
func (c *FakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(c.start)
}
