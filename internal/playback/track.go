package playback

import (
	"sync"
	"time"

	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/opus"
)

// Track is a resolved item that can be played by one Player at a time.
type Track struct {
	info   engine.TrackInfo
	source Source

	mu       sync.Mutex
	position time.Duration
	seeked   bool
	marker   time.Duration
	markerFn func()
}

func newTrack(info engine.TrackInfo, source Source) *Track {
	return &Track{info: info, source: source}
}

func (t *Track) Info() engine.TrackInfo { return t.info }

func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// SetPosition seeks. A playing track restarts reading at the new position
// on the next frame request.
func (t *Track) SetPosition(position time.Duration) {
	if position < 0 {
		position = 0
	}
	t.mu.Lock()
	t.position = position
	t.seeked = true
	t.mu.Unlock()
}

func (t *Track) SetEndMarker(position time.Duration, fn func()) {
	t.mu.Lock()
	t.marker = position
	t.markerFn = fn
	t.mu.Unlock()
}

func (t *Track) MakeClone() engine.Track {
	return newTrack(t.info, t.source)
}

// takeSeek reports a pending seek and clears it.
func (t *Track) takeSeek() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seeked := t.seeked
	t.seeked = false
	return t.position, seeked
}

// advance moves the position one frame forward and returns the frame's
// timecode together with the end marker callback if it was just reached.
// The callback is cleared so it fires once.
func (t *Track) advance() (time.Duration, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	timecode := t.position
	t.position += opus.FrameDuration

	var fn func()
	if t.markerFn != nil && t.position >= t.marker {
		fn = t.markerFn
		t.markerFn = nil
	}
	return timecode, fn
}

var _ engine.Track = (*Track)(nil)
