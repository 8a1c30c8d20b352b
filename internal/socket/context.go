package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/player"
	"github.com/glizzus/soundlink/internal/schedule"
	"github.com/glizzus/soundlink/internal/util"
)

// DefaultResumeTimeout applies when configureResuming omits a timeout.
const DefaultResumeTimeout = 60 * time.Second

const mirrorBuffer = 256

// Context is one controller session. It outlives its websocket while the
// session is paused for resuming.
type Context struct {
	id        string
	manager   engine.Manager
	voice     VoiceGateway
	playerCfg player.Config
	clock     clock.Clock
	scheduler *schedule.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	players map[uint64]*player.Player
	voices  map[uint64]VoiceConnection

	sendMu        sync.Mutex
	conn          *conn
	paused        bool
	queue         [][]byte
	resumeKey     string
	resumeTimeout time.Duration
	stopTimeout   context.CancelFunc
	closed        bool

	mirror chan eventlog.Entry
}

func newContext(id string, manager engine.Manager, voice VoiceGateway, playerCfg player.Config, clk clock.Clock, publisher eventlog.Publisher) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		id:            id,
		manager:       manager,
		voice:         voice,
		playerCfg:     playerCfg,
		clock:         clk,
		scheduler:     schedule.NewScheduler(clk),
		ctx:           ctx,
		cancel:        cancel,
		players:       make(map[uint64]*player.Player),
		voices:        make(map[uint64]VoiceConnection),
		resumeTimeout: DefaultResumeTimeout,
	}
	if publisher != nil {
		c.mirror = make(chan eventlog.Entry, mirrorBuffer)
		go c.publish(publisher)
	}
	return c
}

func (c *Context) SessionID() string {
	return c.id
}

// Player returns the player of guildID, creating it on first use.
func (c *Context) Player(guildID uint64) *player.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.players[guildID]; ok {
		return p
	}
	p := player.New(c, guildID, c.manager, c.playerCfg, player.WithClock(c.clock))
	c.players[guildID] = p
	slog.Debug("Created player", "sessionID", c.id, "guildID", guildID)
	return p
}

func (c *Context) ExistingPlayer(guildID uint64) (*player.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.players[guildID]
	return p, ok
}

// Players returns the session's players ordered by guild.
func (c *Context) Players() []*player.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return util.SortedValues(c.players)
}

func (c *Context) PlayingPlayers() []*player.Player {
	var playing []*player.Player
	for _, p := range c.Players() {
		if p.IsPlaying() {
			playing = append(playing, p)
		}
	}
	return playing
}

// DestroyPlayer destroys the guild's player and closes its voice connection.
func (c *Context) DestroyPlayer(guildID uint64) {
	c.mu.Lock()
	p, ok := c.players[guildID]
	delete(c.players, guildID)
	vc := c.voices[guildID]
	delete(c.voices, guildID)
	c.mu.Unlock()

	if ok {
		if err := p.Destroy(); err != nil {
			slog.Debug("Player already destroyed", "guildID", guildID, "error", err)
		}
	}
	if vc != nil {
		if err := vc.Close(); err != nil {
			slog.Warn("Failed to close voice connection", "guildID", guildID, "error", err)
		}
	}
}

// Connect joins a voice channel for guildID and starts feeding it from the
// guild's player.
func (c *Context) Connect(ctx context.Context, guildID uint64, channelID string) error {
	vc, err := c.voice.Join(ctx, guildID, channelID)
	if err != nil {
		return err
	}
	p := c.Player(guildID)

	c.mu.Lock()
	previous := c.voices[guildID]
	c.voices[guildID] = vc
	c.mu.Unlock()

	// A channel move may hand back the connection already in use.
	if previous != nil && previous != vc {
		if err := previous.Close(); err != nil {
			slog.Warn("Failed to close previous voice connection", "guildID", guildID, "error", err)
		}
	}

	vc.Provide(p.Bridge())
	c.Send(VoiceConnectionReady{
		EventBase: eventBase(EventVoiceConnectionReady, guildID),
		ChannelID: vc.ChannelID(),
	})
	p.SendUpdate()
	return nil
}

// Disconnect leaves the guild's voice channel. The player is kept.
func (c *Context) Disconnect(guildID uint64, reason string) {
	c.mu.Lock()
	vc := c.voices[guildID]
	delete(c.voices, guildID)
	c.mu.Unlock()

	if vc == nil {
		return
	}
	if err := vc.Close(); err != nil {
		slog.Warn("Failed to close voice connection", "guildID", guildID, "error", err)
	}
	c.Send(VoiceConnectionClosed{
		EventBase: eventBase(EventVoiceConnectionClosed, guildID),
		Reason:    &reason,
		Code:      1000,
	})
	if p, ok := c.ExistingPlayer(guildID); ok {
		p.SendUpdate()
	}
}

func (c *Context) ExistingVoiceLink(guildID uint64) (player.VoiceLink, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vc, ok := c.voices[guildID]
	return vc, ok
}

func (c *Context) PlayerUpdateScheduler() *schedule.Scheduler {
	return c.scheduler
}

func (c *Context) SessionPaused() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.paused
}

// Send encodes payload and delivers it, or queues it while the session is
// paused. It never blocks on the network. A full send buffer closes the
// websocket instead of losing the message.
func (c *Context) Send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode message", "sessionID", c.id, "error", err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.mirrorLocked(data)
	if c.paused {
		c.queue = append(c.queue, data)
		return
	}
	if c.conn == nil {
		return
	}
	if !c.conn.enqueue(data) {
		// The controller is not keeping up. Hold this and later messages
		// and drop the websocket; the read loop then pauses the session for
		// resuming or shuts it down.
		slog.Warn("Closing slow session", "sessionID", c.id)
		c.queue = append(c.queue, data)
		c.paused = true
		c.conn.close()
		c.conn = nil
	}
}

func (c *Context) mirrorLocked(data []byte) {
	if c.mirror == nil {
		return
	}
	var envelope struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}
	entry := eventlog.Entry{
		SessionID: c.id,
		Op:        envelope.Op,
		Payload:   string(data),
		Time:      c.clock.Now(),
	}
	select {
	case c.mirror <- entry:
	default:
		slog.Warn("Event mirror is full, dropping entry", "sessionID", c.id, "op", envelope.Op)
	}
}

func (c *Context) publish(publisher eventlog.Publisher) {
	for entry := range c.mirror {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := publisher.Publish(ctx, entry); err != nil {
			slog.Warn("Failed to mirror message", "sessionID", c.id, "op", entry.Op, "error", err)
		}
		cancel()
	}
}

// ConfigureResuming enables resuming under key. An empty key disables it.
func (c *Context) ConfigureResuming(key string, timeout time.Duration) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.resumeKey = key
	if timeout > 0 {
		c.resumeTimeout = timeout
	}
}

func (c *Context) resumeConfig() (string, time.Duration) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.resumeKey, c.resumeTimeout
}

func (c *Context) attach(ws *conn) {
	c.sendMu.Lock()
	c.conn = ws
	c.sendMu.Unlock()
}

// pause detaches the websocket and holds outgoing messages until resume or
// until onTimeout runs after the resume timeout.
func (c *Context) pause(onTimeout func()) {
	c.sendMu.Lock()
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	c.paused = true
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopTimeout = cancel
	timeout := c.resumeTimeout
	c.sendMu.Unlock()

	slog.Info("Session paused", "sessionID", c.id, "timeout", timeout)
	schedule.RunAt(ctx, c.clock, c.clock.Now().Add(timeout), func(context.Context) {
		onTimeout()
	})
}

// resume attaches ws, replays queued messages and reports every player.
func (c *Context) resume(ws *conn) {
	c.sendMu.Lock()
	if c.stopTimeout != nil {
		c.stopTimeout()
		c.stopTimeout = nil
	}
	c.paused = false
	c.conn = ws
	slog.Info("Replaying events", "sessionID", c.id, "count", len(c.queue))
	for _, data := range c.queue {
		if !ws.enqueueWait(data) {
			slog.Warn("Dropping replayed message", "sessionID", c.id)
		}
	}
	c.queue = nil
	c.sendMu.Unlock()

	for _, p := range c.Players() {
		p.SendUpdate()
	}
	c.Send(Resumed{Op: "resume", SessionID: c.id})
}

// Shutdown destroys every player and voice connection and stops the
// session's background work.
func (c *Context) Shutdown() {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	c.queue = nil
	c.sendMu.Unlock()

	slog.Info("Shutting down session", "sessionID", c.id, "playing", len(c.PlayingPlayers()))
	c.cancel()
	for _, p := range c.Players() {
		c.DestroyPlayer(p.GuildID())
	}
	c.mu.Lock()
	voices := c.voices
	c.voices = make(map[uint64]VoiceConnection)
	c.mu.Unlock()
	for guildID, vc := range voices {
		if err := vc.Close(); err != nil {
			slog.Warn("Failed to close voice connection", "guildID", guildID, "error", err)
		}
	}
	c.scheduler.Shutdown()

	c.sendMu.Lock()
	if c.mirror != nil {
		close(c.mirror)
	}
	c.sendMu.Unlock()
}

var _ player.Socket = (*Context)(nil)
