package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/repository"
	"github.com/glizzus/soundlink/internal/util"
)

const (
	DefaultStuckThreshold = 10 * time.Second
	DefaultBufferDuration = 5 * time.Second
	DefaultLoadTimeout    = 30 * time.Second

	playlistPrefix = "playlist:"
)

type Config struct {
	StuckThreshold time.Duration
	BufferDuration time.Duration
	LoadTimeout    time.Duration
}

// Manager resolves identifiers against its sources and creates players.
type Manager struct {
	cfg       Config
	clk       clock.Clock
	sources   []Source
	playlists repository.PlaylistFinder
	blocklist eventlog.Blocklist
}

type Option func(*Manager)

func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clk = clk }
}

// WithSource appends source. Sources are tried in the order they were added.
func WithSource(source Source) Option {
	return func(m *Manager) { m.sources = append(m.sources, source) }
}

// WithPlaylists enables playlist:<name> identifiers.
func WithPlaylists(playlists repository.PlaylistFinder) Option {
	return func(m *Manager) { m.playlists = playlists }
}

func WithBlocklist(blocklist eventlog.Blocklist) Option {
	return func(m *Manager) { m.blocklist = blocklist }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = DefaultStuckThreshold
	}
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = DefaultBufferDuration
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	m := &Manager{cfg: cfg, clk: clock.New()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) CreatePlayer() engine.Player {
	return &Player{
		clk:            m.clk,
		bufferDuration: m.cfg.BufferDuration,
		stuckThreshold: m.cfg.StuckThreshold,
		volume:         100,
	}
}

// LoadItem resolves identifier on a new goroutine.
func (m *Manager) LoadItem(identifier string, handler engine.LoadResultHandler) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LoadTimeout)
		defer cancel()
		m.load(ctx, identifier, handler)
	}()
}

func (m *Manager) load(ctx context.Context, identifier string, handler engine.LoadResultHandler) {
	if m.blocklist != nil {
		blocked, err := m.blocklist.IsBlocked(ctx, identifier)
		if err != nil {
			handler.LoadFailed(engine.NewFriendlyError("Could not check whether the track is available.", engine.SeveritySuspicious, err))
			return
		}
		if blocked {
			handler.LoadFailed(engine.NewFriendlyError("This track is not available.", engine.SeverityCommon, nil))
			return
		}
	}

	if name, ok := strings.CutPrefix(identifier, playlistPrefix); ok && m.playlists != nil {
		m.loadPlaylist(ctx, name, handler)
		return
	}

	track, err := m.resolve(ctx, identifier)
	switch {
	case err == nil:
		handler.TrackLoaded(track)
	case errors.Is(err, ErrNoMatch):
		handler.NoMatches()
	default:
		handler.LoadFailed(engine.NewFriendlyError("Something went wrong when looking up the track.", engine.SeveritySuspicious, err))
	}
}

func (m *Manager) loadPlaylist(ctx context.Context, name string, handler engine.LoadResultHandler) {
	playlist, err := m.playlists.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrPlaylistNotFound) {
			handler.NoMatches()
			return
		}
		handler.LoadFailed(engine.NewFriendlyError("Something went wrong when looking up the playlist.", engine.SeveritySuspicious, err))
		return
	}

	result := engine.Playlist{Name: playlist.Name, SelectedTrack: -1}
	for _, identifier := range playlist.Identifiers {
		track, err := m.resolve(ctx, identifier)
		if err != nil {
			slog.Warn("Skipping unresolvable playlist entry", "playlist", name, "identifier", identifier, "error", err)
			continue
		}
		result.Tracks = append(result.Tracks, track)
	}
	if len(result.Tracks) == 0 {
		handler.NoMatches()
		return
	}
	handler.PlaylistLoaded(result)
}

func (m *Manager) resolve(ctx context.Context, identifier string) (*Track, error) {
	source, ok := util.FindFirst(m.sources, func(s Source) bool { return s.Match(identifier) })
	if !ok {
		return nil, fmt.Errorf("%w: no source for %s", ErrNoMatch, identifier)
	}
	info, err := source.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return newTrack(info, source), nil
}

func (m *Manager) EncodeTrack(track engine.Track) (string, error) {
	return engine.EncodeTrackInfo(track.Info(), track.Position())
}

func (m *Manager) DecodeTrack(encoded string) (engine.Track, error) {
	info, position, err := engine.DecodeTrackInfo(encoded)
	if err != nil {
		return nil, err
	}
	source, ok := util.FindFirst(m.sources, func(s Source) bool { return s.Name() == info.SourceName })
	if !ok {
		return nil, fmt.Errorf("unknown source %q for track %s", info.SourceName, info.Identifier)
	}
	track := newTrack(info, source)
	if position > 0 {
		track.SetPosition(position)
	}
	return track, nil
}

var _ engine.Manager = (*Manager)(nil)
