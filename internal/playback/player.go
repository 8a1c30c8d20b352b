package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/engine"
)

const (
	MinVolume = 0
	MaxVolume = 1000
)

// Player plays Tracks created by the same Manager. Listener callbacks run
// on the goroutine that caused them and never under the player's lock.
type Player struct {
	clk            clock.Clock
	bufferDuration time.Duration
	stuckThreshold time.Duration

	mu            sync.Mutex
	listeners     []engine.Listener
	current       *Track
	stream        *stream
	paused        bool
	volume        int
	destroyed     bool
	lastFrame     time.Time
	stuckReported bool
}

func (p *Player) AddListener(listener engine.Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, listener)
	p.mu.Unlock()
}

func (p *Player) PlayTrack(track engine.Track) {
	p.StartTrack(track, false)
}

func (p *Player) StartTrack(track engine.Track, noInterrupt bool) bool {
	if track == nil {
		p.StopTrack()
		return true
	}
	next, ok := track.(*Track)
	if !ok {
		slog.Error("Refusing to play a track from another engine", "identifier", track.Info().Identifier)
		return false
	}

	p.mu.Lock()
	if p.destroyed || (noInterrupt && p.current != nil) {
		p.mu.Unlock()
		return false
	}
	previous := p.detachLocked()
	position, _ := next.takeSeek()
	p.current = next
	p.stream = startStream(next, position, p.bufferDuration)
	p.lastFrame = p.clk.Now()
	p.stuckReported = false
	listeners := p.listenersLocked()
	p.mu.Unlock()

	if previous != nil {
		for _, l := range listeners {
			l.OnTrackEnd(p, previous, engine.EndReplaced)
		}
	}
	for _, l := range listeners {
		l.OnTrackStart(p, next)
	}
	return true
}

func (p *Player) StopTrack() {
	p.stopWith(engine.EndStopped)
}

func (p *Player) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()
	p.stopWith(engine.EndCleanup)
}

func (p *Player) stopWith(reason engine.TrackEndReason) {
	p.mu.Lock()
	previous := p.detachLocked()
	listeners := p.listenersLocked()
	p.mu.Unlock()

	if previous == nil {
		return
	}
	for _, l := range listeners {
		l.OnTrackEnd(p, previous, reason)
	}
}

// detachLocked stops reading the current track and returns it.
func (p *Player) detachLocked() *Track {
	previous := p.current
	if p.stream != nil {
		p.stream.stop()
	}
	p.current = nil
	p.stream = nil
	return previous
}

func (p *Player) listenersLocked() []engine.Listener {
	return append([]engine.Listener(nil), p.listeners...)
}

func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	if p.paused == paused {
		p.mu.Unlock()
		return
	}
	p.paused = paused
	if !paused {
		p.lastFrame = p.clk.Now()
	}
	listeners := p.listenersLocked()
	p.mu.Unlock()

	for _, l := range listeners {
		if paused {
			l.OnPlayerPause(p)
		} else {
			l.OnPlayerResume(p)
		}
	}
}

func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetVolume clamps volume to [MinVolume, MaxVolume]. Frames pass through
// untouched, so the value is only stored and reported.
func (p *Player) SetVolume(volume int) {
	volume = min(max(volume, MinVolume), MaxVolume)
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) PlayingTrack() engine.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

// Provide hands out the next buffered frame. When the buffer is empty it
// finishes the track if the reader is done, or reports the track as stuck
// once no frame has arrived for the stuck threshold.
func (p *Player) Provide() (engine.Frame, bool) {
	p.mu.Lock()
	if p.destroyed || p.paused || p.current == nil {
		p.mu.Unlock()
		return engine.Frame{}, false
	}
	track := p.current
	if position, seeked := track.takeSeek(); seeked {
		p.stream.stop()
		p.stream = startStream(track, position, p.bufferDuration)
		p.lastFrame = p.clk.Now()
	}
	s := p.stream

	data, ok, over := s.next()
	if ok {
		p.lastFrame = p.clk.Now()
		p.stuckReported = false
		p.mu.Unlock()

		timecode, markerFn := track.advance()
		if markerFn != nil {
			markerFn()
		}
		return engine.Frame{Data: data, Timecode: timecode}, true
	}

	if over {
		p.current = nil
		p.stream = nil
		listeners := p.listenersLocked()
		p.mu.Unlock()
		p.finish(listeners, track, s.err)
		return engine.Frame{}, false
	}

	if p.stuckReported || p.clk.Since(p.lastFrame) < p.stuckThreshold {
		p.mu.Unlock()
		return engine.Frame{}, false
	}
	p.stuckReported = true
	listeners := p.listenersLocked()
	p.mu.Unlock()

	slog.Warn("Track stuck", "identifier", track.info.Identifier, "threshold", p.stuckThreshold)
	for _, l := range listeners {
		l.OnTrackStuck(p, track, p.stuckThreshold)
	}
	return engine.Frame{}, false
}

func (p *Player) finish(listeners []engine.Listener, track *Track, err error) {
	if err == nil {
		for _, l := range listeners {
			l.OnTrackEnd(p, track, engine.EndFinished)
		}
		return
	}

	slog.Error("Track failed", "identifier", track.info.Identifier, "error", err)
	friendly := engine.NewFriendlyError("Something broke when playing the track.", engine.SeveritySuspicious, err)
	for _, l := range listeners {
		l.OnTrackException(p, track, friendly)
	}
	for _, l := range listeners {
		l.OnTrackEnd(p, track, engine.EndLoadFailed)
	}
}

var _ engine.Player = (*Player)(nil)
