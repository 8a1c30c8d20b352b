// Package loss keeps rolling statistics on Opus frame delivery.
package loss

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// FramesPerSecond is the voice transport's frame cadence.
	FramesPerSecond = 50
	// WindowSeconds is the number of one-second buckets kept.
	WindowSeconds = 60
	// ExpectedPacketCountPerMin is the frame budget of a full window.
	ExpectedPacketCountPerMin = FramesPerSecond * WindowSeconds
	// DefaultMinUsableSeconds is how long a counter must have been recording
	// before its numbers are reported as usable.
	DefaultMinUsableSeconds = WindowSeconds
)

type bucket struct {
	second int64
	sent   int
	nulled int
}

// Counter tracks sent and nulled frames over the trailing minute, one bucket
// per wall-clock second. It is safe for concurrent use.
type Counter struct {
	clock     clock.Clock
	minUsable int64

	mu      sync.Mutex
	buckets [WindowSeconds]bucket
	started bool
	since   int64
}

// NewCounter returns a Counter reading time from clk. Data becomes usable
// once minUsableSeconds have passed since the first recorded frame; values
// below one fall back to DefaultMinUsableSeconds.
func NewCounter(clk clock.Clock, minUsableSeconds int) *Counter {
	if clk == nil {
		clk = clock.New()
	}
	if minUsableSeconds < 1 {
		minUsableSeconds = DefaultMinUsableSeconds
	}
	c := &Counter{clock: clk, minUsable: int64(minUsableSeconds)}
	for i := range c.buckets {
		c.buckets[i].second = -1
	}
	return c
}

// OnSuccess records a frame handed to the transport.
func (c *Counter) OnSuccess() {
	c.record(func(b *bucket) { b.sent++ })
}

// OnLoss records a pull cycle that produced no frame.
func (c *Counter) OnLoss() {
	c.record(func(b *bucket) { b.nulled++ })
}

func (c *Counter) record(inc func(*bucket)) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		c.started = true
		c.since = now
	}

	// The transport cannot deliver more than a window's worth of frames,
	// anything beyond that is clock skew.
	sent, nulled := c.sumLocked(now)
	if sent+nulled >= ExpectedPacketCountPerMin {
		return
	}

	b := &c.buckets[now%WindowSeconds]
	if b.second != now {
		*b = bucket{second: now}
	}
	inc(b)
}

// LastMinuteSent returns the frames sent during the trailing minute.
func (c *Counter) LastMinuteSent() int {
	sent, _ := c.sum()
	return sent
}

// LastMinuteNulled returns the empty pull cycles of the trailing minute.
func (c *Counter) LastMinuteNulled() int {
	_, nulled := c.sum()
	return nulled
}

// IsDataUsable reports whether the counter has been recording long enough
// for its ratios to mean something.
func (c *Counter) IsDataUsable() bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && now-c.since >= c.minUsable
}

func (c *Counter) sum() (int, int) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sumLocked(now)
}

func (c *Counter) sumLocked(now int64) (sent, nulled int) {
	for _, b := range c.buckets {
		if b.second < 0 || now-b.second >= WindowSeconds || b.second > now {
			continue
		}
		sent += b.sent
		nulled += b.nulled
	}
	return sent, nulled
}

func (c *Counter) now() int64 {
	return c.clock.Now().UnixNano() / int64(time.Second)
}
