// Package enginetest provides an in-memory engine whose players and
// resolutions are driven by the test.
package enginetest

import (
	"errors"
	"sync"
	"time"

	"github.com/glizzus/soundlink/internal/engine"
)

// Track is an engine.Track with a settable position.
type Track struct {
	mu       sync.Mutex
	info     engine.TrackInfo
	position time.Duration
	marker   time.Duration
	markerFn func()
}

func NewTrack(identifier, title string) *Track {
	return &Track{info: engine.TrackInfo{
		Identifier: identifier,
		Title:      title,
		Author:     "enginetest",
		Length:     3 * time.Minute,
		URI:        identifier,
		SourceName: "test",
	}}
}

func (t *Track) Info() engine.TrackInfo { return t.info }

func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *Track) SetPosition(position time.Duration) {
	t.mu.Lock()
	t.position = position
	t.mu.Unlock()
}

func (t *Track) SetEndMarker(position time.Duration, fn func()) {
	t.mu.Lock()
	t.marker = position
	t.markerFn = fn
	t.mu.Unlock()
}

// ReachMarker runs the end marker callback, if one is set.
func (t *Track) ReachMarker() bool {
	t.mu.Lock()
	fn := t.markerFn
	t.markerFn = nil
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (t *Track) MakeClone() engine.Track {
	return &Track{info: t.info}
}

var _ engine.Track = (*Track)(nil)

// Player is a scriptable engine.Player. Callbacks are dispatched
// synchronously on the calling goroutine, like the production engine.
type Player struct {
	mu        sync.Mutex
	listeners []engine.Listener
	current   engine.Track
	paused    bool
	volume    int
	destroyed bool
	frames    [][]byte
}

func (p *Player) AddListener(l engine.Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

func (p *Player) snapshotListeners() []engine.Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Listener(nil), p.listeners...)
}

func (p *Player) PlayTrack(track engine.Track) {
	p.StartTrack(track, false)
}

func (p *Player) StartTrack(track engine.Track, noInterrupt bool) bool {
	p.mu.Lock()
	previous := p.current
	if noInterrupt && previous != nil {
		p.mu.Unlock()
		return false
	}
	p.current = track
	p.mu.Unlock()

	if previous != nil {
		p.dispatchEnd(previous, engine.EndReplaced)
	}
	if track != nil {
		for _, l := range p.snapshotListeners() {
			l.OnTrackStart(p, track)
		}
	}
	return true
}

func (p *Player) StopTrack() {
	p.endCurrent(engine.EndStopped)
}

// Finish ends the current track with reason, as the engine would when the
// source runs dry or fails.
func (p *Player) Finish(reason engine.TrackEndReason) {
	p.endCurrent(reason)
}

func (p *Player) endCurrent(reason engine.TrackEndReason) {
	p.mu.Lock()
	previous := p.current
	p.current = nil
	p.mu.Unlock()
	if previous != nil {
		p.dispatchEnd(previous, reason)
	}
}

func (p *Player) dispatchEnd(track engine.Track, reason engine.TrackEndReason) {
	for _, l := range p.snapshotListeners() {
		l.OnTrackEnd(p, track, reason)
	}
}

// Fail reports an exception for the current track.
func (p *Player) Fail(err *engine.FriendlyError) {
	track := p.PlayingTrack()
	for _, l := range p.snapshotListeners() {
		l.OnTrackException(p, track, err)
	}
}

// Stick reports the current track as stuck.
func (p *Player) Stick(threshold time.Duration) {
	track := p.PlayingTrack()
	for _, l := range p.snapshotListeners() {
		l.OnTrackStuck(p, track, threshold)
	}
}

func (p *Player) Destroy() {
	p.endCurrent(engine.EndCleanup)
	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()
}

func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	changed := p.paused != paused
	p.paused = paused
	p.mu.Unlock()
	if !changed {
		return
	}
	for _, l := range p.snapshotListeners() {
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

func (p *Player) SetVolume(volume int) {
	p.mu.Lock()
	p.volume = min(max(volume, 0), 1000)
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
	return p.current
}

// Feed queues frames for Provide. A nil entry makes Provide report no frame.
func (p *Player) Feed(frames ...[]byte) {
	p.mu.Lock()
	p.frames = append(p.frames, frames...)
	p.mu.Unlock()
}

func (p *Player) Provide() (engine.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		return engine.Frame{}, false
	}
	next := p.frames[0]
	p.frames = p.frames[1:]
	if next == nil {
		return engine.Frame{}, false
	}
	return engine.Frame{Data: next}, true
}

var _ engine.Player = (*Player)(nil)

// Outcome is a scripted resolution result.
type Outcome struct {
	Track    engine.Track
	Playlist *engine.Playlist
	Err      *engine.FriendlyError
}

var ErrEncodeFailed = errors.New("enginetest: encoding disabled")

// Manager is a scriptable engine.Manager. Identifiers without a scripted
// outcome resolve to no matches.
type Manager struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	players  []*Player
	tracks   map[string]engine.Track

	// FailEncoding makes EncodeTrack return ErrEncodeFailed.
	FailEncoding bool
	// Async dispatches load results on a new goroutine.
	Async bool
}

func NewManager() *Manager {
	return &Manager{
		outcomes: make(map[string]Outcome),
		tracks:   make(map[string]engine.Track),
	}
}

// Script sets the outcome for identifier.
func (m *Manager) Script(identifier string, outcome Outcome) {
	m.mu.Lock()
	m.outcomes[identifier] = outcome
	m.mu.Unlock()
}

func (m *Manager) CreatePlayer() engine.Player {
	p := &Player{volume: 100}
	m.mu.Lock()
	m.players = append(m.players, p)
	m.mu.Unlock()
	return p
}

// Players returns every player created so far.
func (m *Manager) Players() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Player(nil), m.players...)
}

func (m *Manager) LoadItem(identifier string, handler engine.LoadResultHandler) {
	m.mu.Lock()
	outcome, ok := m.outcomes[identifier]
	m.mu.Unlock()

	deliver := func() {
		switch {
		case !ok:
			handler.NoMatches()
		case outcome.Err != nil:
			handler.LoadFailed(outcome.Err)
		case outcome.Playlist != nil:
			handler.PlaylistLoaded(*outcome.Playlist)
		case outcome.Track != nil:
			handler.TrackLoaded(outcome.Track)
		default:
			handler.NoMatches()
		}
	}
	if m.Async {
		go deliver()
		return
	}
	deliver()
}

func (m *Manager) EncodeTrack(track engine.Track) (string, error) {
	if m.FailEncoding {
		return "", ErrEncodeFailed
	}
	encoded, err := engine.EncodeTrackInfo(track.Info(), 0)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.tracks[encoded] = track
	m.mu.Unlock()
	return encoded, nil
}

// DecodeTrack returns the original track for descriptors produced by
// EncodeTrack and a fresh Track otherwise.
func (m *Manager) DecodeTrack(encoded string) (engine.Track, error) {
	m.mu.Lock()
	track, ok := m.tracks[encoded]
	m.mu.Unlock()
	if ok {
		return track, nil
	}
	info, position, err := engine.DecodeTrackInfo(encoded)
	if err != nil {
		return nil, err
	}
	t := &Track{info: info, position: position}
	return t, nil
}

var _ engine.Manager = (*Manager)(nil)
