package player

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/loss"
	"github.com/glizzus/soundlink/internal/schedule"
)

var ErrInvalidOperation = errors.New("invalid operation")

var (
	ErrNothingPlaying = fmt.Errorf("%w: can't seek when not playing anything", ErrInvalidOperation)
	ErrDestroyed      = fmt.Errorf("%w: player has been destroyed", ErrInvalidOperation)
)

// DefaultUpdateInterval is used when Config.UpdateInterval is not positive.
const DefaultUpdateInterval = 5 * time.Second

type Config struct {
	// UpdateInterval is the period of playerUpdate broadcasts while a track
	// is active.
	UpdateInterval time.Duration
	// MinUsableSeconds is passed to the loss counter.
	MinUsableSeconds int
}

type Option func(*Player)

// WithClock sets the clock used for loss statistics and state timestamps.
func WithClock(clk clock.Clock) Option {
	return func(p *Player) { p.clock = clk }
}

func WithServices(services Services) Option {
	return func(p *Player) { p.services = services }
}

func WithFilters(filters Filters) Option {
	return func(p *Player) { p.filters = filters }
}

// Player is the playback session of one guild.
type Player struct {
	socket   Socket
	guildID  uint64
	manager  engine.Manager
	engine   engine.Player
	interval time.Duration
	clock    clock.Clock
	loss     *loss.Counter
	bridge   *FrameBridge
	filters  Filters
	services Services

	mu           sync.Mutex
	task         *schedule.Task
	taskTrack    engine.Track
	endMarkerHit bool
	destroyed    bool
}

// New creates the engine player for guildID and wires its callbacks.
func New(socket Socket, guildID uint64, manager engine.Manager, cfg Config, opts ...Option) *Player {
	p := &Player{
		socket:   socket,
		guildID:  guildID,
		manager:  manager,
		interval: cfg.UpdateInterval,
		clock:    clock.New(),
		filters:  NewFilterChain(),
		services: NopServices{},
	}
	if p.interval <= 0 {
		p.interval = DefaultUpdateInterval
	}
	for _, opt := range opts {
		opt(p)
	}

	p.loss = loss.NewCounter(p.clock, cfg.MinUsableSeconds)
	p.engine = manager.CreatePlayer()
	p.bridge = newFrameBridge(p.engine, p.loss)

	p.engine.AddListener(&broadcaster{player: p})
	p.engine.AddListener(&emitter{player: p})
	return p
}

func (p *Player) GuildID() uint64 {
	return p.guildID
}

// Bridge is the frame source handed to the guild's voice connection.
func (p *Player) Bridge() *FrameBridge {
	return p.bridge
}

func (p *Player) LossCounter() *loss.Counter {
	return p.loss
}

func (p *Player) Filters() Filters {
	return p.filters
}

// PlayingTrack returns the current track, or nil.
func (p *Player) PlayingTrack() engine.Track {
	return p.engine.PlayingTrack()
}

func (p *Player) IsPlaying() bool {
	return p.engine.PlayingTrack() != nil && !p.engine.IsPaused()
}

func (p *Player) IsPaused() bool {
	return p.engine.IsPaused()
}

func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *Player) alive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrDestroyed
	}
	return nil
}

// Play replaces whatever is playing with track and pushes an update.
func (p *Player) Play(track engine.Track) error {
	if err := p.alive(); err != nil {
		return err
	}
	p.engine.PlayTrack(track)
	p.SendUpdate()
	return nil
}

// Start plays track unless noReplace is set and something is already
// playing. It reports whether the track was started.
func (p *Player) Start(track engine.Track, noReplace bool) (bool, error) {
	if err := p.alive(); err != nil {
		return false, err
	}
	if !p.engine.StartTrack(track, noReplace) {
		return false, nil
	}
	p.SendUpdate()
	return true, nil
}

func (p *Player) Stop() error {
	if err := p.alive(); err != nil {
		return err
	}
	p.engine.StopTrack()
	return nil
}

func (p *Player) SetPause(paused bool) error {
	if err := p.alive(); err != nil {
		return err
	}
	p.engine.SetPaused(paused)
	return nil
}

func (p *Player) SeekTo(position time.Duration) error {
	if err := p.alive(); err != nil {
		return err
	}
	track := p.engine.PlayingTrack()
	if track == nil {
		return ErrNothingPlaying
	}
	track.SetPosition(position)
	return nil
}

// SetVolume forwards volume to the engine, which clamps it.
func (p *Player) SetVolume(volume int) error {
	if err := p.alive(); err != nil {
		return err
	}
	p.engine.SetVolume(volume)
	return nil
}

// UpdateFilters replaces the filter configuration when the player's filters
// accept updates.
func (p *Player) UpdateFilters(raw json.RawMessage) error {
	if err := p.alive(); err != nil {
		return err
	}
	updatable, ok := p.filters.(interface{ Update(json.RawMessage) error })
	if !ok {
		return fmt.Errorf("%w: filters are not configurable", ErrInvalidOperation)
	}
	return updatable.Update(raw)
}

// Destroy cancels the broadcast task and releases the engine player. Every
// later command fails with ErrDestroyed.
func (p *Player) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	p.destroyed = true
	task := p.task
	p.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	p.engine.Destroy()
	slog.Debug("destroyed player", "guildID", p.guildID)
	return nil
}

func (p *Player) SetEndMarkerHit(hit bool) {
	p.mu.Lock()
	p.endMarkerHit = hit
	p.mu.Unlock()
}

func (p *Player) EndMarkerHit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endMarkerHit
}

func (p *Player) takeEndMarkerHit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	hit := p.endMarkerHit
	p.endMarkerHit = false
	return hit
}

// InstallEndMarker truncates track at position. Reaching it stops the track
// and the resulting end event reports FINISHED.
func (p *Player) InstallEndMarker(track engine.Track, position time.Duration) {
	track.SetEndMarker(position, func() {
		p.SetEndMarkerHit(true)
		p.engine.StopTrack()
	})
}

// broadcaster runs the playerUpdate task while a track plays. Start and end
// callbacks for different tracks may arrive out of order, so the task
// belongs to the last track that started and stale callbacks are checked
// against the engine's current track.
type broadcaster struct {
	engine.ListenerAdapter
	player *Player
}

func (b *broadcaster) OnTrackStart(_ engine.Player, track engine.Track) {
	p := b.player
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed || p.engine.PlayingTrack() != track {
		return
	}
	p.taskTrack = track
	if p.task != nil && !p.task.Cancelled() {
		return
	}
	p.task = p.socket.PlayerUpdateScheduler().Every(p.interval, p.tick)
}

func (b *broadcaster) OnTrackEnd(_ engine.Player, track engine.Track, _ engine.TrackEndReason) {
	p := b.player
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.task == nil {
		return
	}
	if track != p.taskTrack && p.engine.PlayingTrack() != nil {
		return
	}
	p.task.Cancel()
	p.taskTrack = nil
}

func (p *Player) tick() {
	if p.socket.SessionPaused() {
		return
	}
	p.SendUpdate()
}
