package flowtable

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// timerResolution bounds how often observed time is pushed into the
// underlying mock, whose Set yields to the scheduler on every call.
const timerResolution = time.Second

// PacketClock is a clock driven by capture timestamps instead of the wall.
// It only moves forward: observing an older timestamp leaves it unchanged.
// Now follows every observation. Timers and tickers created from it fire as
// observed time passes them, at timerResolution granularity.
type PacketClock struct {
	*clock.Mock

	mu  sync.RWMutex
	now time.Time
}

// NewPacketClock returns a clock that reads the Unix epoch until the first
// timestamp is observed.
func NewPacketClock() *PacketClock {
	m := clock.NewMock()
	return &PacketClock{Mock: m, now: m.Now()}
}

// Observe advances the clock to ts when ts is later than the current time.
func (c *PacketClock) Observe(ts time.Time) {
	if ts.IsZero() {
		return
	}
	c.mu.Lock()
	if !ts.After(c.now) {
		c.mu.Unlock()
		return
	}
	c.now = ts
	c.mu.Unlock()

	if ts.Sub(c.Mock.Now()) >= timerResolution {
		c.Mock.Set(ts)
	}
}

// Now returns the latest observed timestamp.
func (c *PacketClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Since returns the observed time elapsed since t.
func (c *PacketClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Until returns the observed time remaining until t.
func (c *PacketClock) Until(t time.Time) time.Duration { return t.Sub(c.Now()) }

// Observer is implemented by clocks that follow packet timestamps.
type Observer interface {
	Observe(ts time.Time)
}

// NewClock returns the clock for the named time source: "packet" or "wall".
func NewClock(source string) clock.Clock {
	if source == "packet" {
		return NewPacketClock()
	}
	return clock.New()
}
