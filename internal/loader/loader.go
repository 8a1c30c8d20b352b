// Package loader resolves a single identifier through the engine and hands
// the outcome back as a Future.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/glizzus/soundlink/internal/engine"
)

var ErrInvalidOperation = errors.New("invalid operation")

// ErrLoaderUsed is returned by a second call to Load on the same Loader.
var ErrLoaderUsed = fmt.Errorf("%w: loader can only be used once", ErrInvalidOperation)

// Kind classifies a load result.
type Kind int

const (
	KindTrack Kind = iota
	KindPlaylist
	KindEmpty
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "TRACK_LOADED"
	case KindPlaylist:
		return "PLAYLIST_LOADED"
	case KindEmpty:
		return "NO_MATCHES"
	case KindFailed:
		return "LOAD_FAILED"
	}
	return "UNKNOWN"
}

// Result is the outcome of one resolution. Only the field matching Kind is set.
type Result struct {
	Kind     Kind
	Track    engine.Track
	Playlist engine.Playlist
	Err      *engine.FriendlyError
}

// Tracks returns the tracks carried by the result in play order.
func (r Result) Tracks() []engine.Track {
	switch r.Kind {
	case KindTrack:
		return []engine.Track{r.Track}
	case KindPlaylist:
		return r.Playlist.Tracks
	}
	return nil
}

// Future completes once with the Result of a Load.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result Result) bool {
	completed := false
	f.once.Do(func() {
		f.result = result
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Loader is a single-use engine.LoadResultHandler.
type Loader struct {
	manager    engine.Manager
	used       atomic.Bool
	future     *Future
	identifier string
}

func New(manager engine.Manager) *Loader {
	return &Loader{manager: manager, future: newFuture()}
}

// Load starts resolving identifier. It never blocks; the returned Future
// completes when the engine reports back.
func (l *Loader) Load(identifier string) (*Future, error) {
	if !l.used.CompareAndSwap(false, true) {
		return nil, ErrLoaderUsed
	}
	l.identifier = identifier
	slog.Debug("loading item", "identifier", identifier)
	l.manager.LoadItem(identifier, l)
	return l.future, nil
}

func (l *Loader) TrackLoaded(track engine.Track) {
	slog.Info("loaded track", "identifier", l.identifier, "title", track.Info().Title)
	l.finish(Result{Kind: KindTrack, Track: track})
}

func (l *Loader) PlaylistLoaded(playlist engine.Playlist) {
	slog.Info("loaded playlist", "identifier", l.identifier, "name", playlist.Name, "tracks", len(playlist.Tracks))
	l.finish(Result{Kind: KindPlaylist, Playlist: playlist})
}

func (l *Loader) NoMatches() {
	slog.Info("no matches", "identifier", l.identifier)
	l.finish(Result{Kind: KindEmpty})
}

func (l *Loader) LoadFailed(err *engine.FriendlyError) {
	slog.Error("failed to load", "identifier", l.identifier, slog.Any("error", err))
	l.finish(Result{Kind: KindFailed, Err: err})
}

func (l *Loader) finish(result Result) {
	if !l.future.complete(result) {
		slog.Warn("ignoring extra load result", "identifier", l.identifier, "kind", result.Kind)
	}
}

var _ engine.LoadResultHandler = (*Loader)(nil)
