package engine

import "time"

// FrameDuration is the length of audio carried by a single Opus frame.
const FrameDuration = 20 * time.Millisecond

// Frame is one unit of encoded audio handed to the voice transport.
type Frame struct {
	Data     []byte
	Timecode time.Duration
}

// TrackInfo describes a resolved track.
type TrackInfo struct {
	Identifier string
	Title      string
	Author     string
	Length     time.Duration
	IsStream   bool
	URI        string
	SourceName string
}

// Track is a playable item owned by the engine.
type Track interface {
	Info() TrackInfo
	Position() time.Duration
	SetPosition(position time.Duration)
	// SetEndMarker registers fn to run once when playback reaches position.
	SetEndMarker(position time.Duration, fn func())
	MakeClone() Track
}

// Playlist is an ordered sequence of tracks. SelectedTrack is -1 when the
// identifier did not point at a specific entry.
type Playlist struct {
	Name          string
	Tracks        []Track
	SelectedTrack int
}

// Player plays one track at a time and hands out its frames on demand.
type Player interface {
	PlayTrack(track Track)
	// StartTrack starts track unless noInterrupt is set and something is
	// already playing. It reports whether the track was started.
	StartTrack(track Track, noInterrupt bool) bool
	StopTrack()
	Destroy()
	SetPaused(paused bool)
	IsPaused() bool
	SetVolume(volume int)
	Volume() int
	PlayingTrack() Track
	// Provide returns the next frame, or false when none is available.
	// It never blocks.
	Provide() (Frame, bool)
	AddListener(listener Listener)
}

// Manager creates players and resolves identifiers.
type Manager interface {
	CreatePlayer() Player
	// LoadItem resolves identifier asynchronously. Exactly one handler
	// method is called per invocation.
	LoadItem(identifier string, handler LoadResultHandler)
	EncodeTrack(track Track) (string, error)
	DecodeTrack(encoded string) (Track, error)
}

// LoadResultHandler receives the outcome of Manager.LoadItem.
type LoadResultHandler interface {
	TrackLoaded(track Track)
	PlaylistLoaded(playlist Playlist)
	NoMatches()
	LoadFailed(err *FriendlyError)
}

// Listener receives player lifecycle callbacks.
type Listener interface {
	OnPlayerPause(player Player)
	OnPlayerResume(player Player)
	OnTrackStart(player Player, track Track)
	OnTrackEnd(player Player, track Track, reason TrackEndReason)
	OnTrackException(player Player, track Track, err *FriendlyError)
	OnTrackStuck(player Player, track Track, threshold time.Duration)
}

// ListenerAdapter implements Listener with no-ops. Embed it to handle a
// subset of callbacks.
type ListenerAdapter struct{}

func (ListenerAdapter) OnPlayerPause(Player)                           {}
func (ListenerAdapter) OnPlayerResume(Player)                          {}
func (ListenerAdapter) OnTrackStart(Player, Track)                     {}
func (ListenerAdapter) OnTrackEnd(Player, Track, TrackEndReason)       {}
func (ListenerAdapter) OnTrackException(Player, Track, *FriendlyError) {}
func (ListenerAdapter) OnTrackStuck(Player, Track, time.Duration)      {}

var _ Listener = ListenerAdapter{}

// TrackEndReason explains why a track stopped playing.
type TrackEndReason int

const (
	EndFinished TrackEndReason = iota
	EndLoadFailed
	EndStopped
	EndReplaced
	EndCleanup
)

var endReasonNames = map[TrackEndReason]string{
	EndFinished:   "FINISHED",
	EndLoadFailed: "LOAD_FAILED",
	EndStopped:    "STOPPED",
	EndReplaced:   "REPLACED",
	EndCleanup:    "CLEANUP",
}

func (r TrackEndReason) String() string {
	if name, ok := endReasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// MayStartNext reports whether a queue should advance after this reason.
func (r TrackEndReason) MayStartNext() bool {
	return r == EndFinished || r == EndLoadFailed
}
