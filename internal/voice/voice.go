// Package voice joins Discord voice channels and feeds them Opus frames.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundlink/internal/opus"
)

var ErrNoVoiceChannel = errors.New("no voice channel to join")

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Voice gateway is ready", "username", username, "userID", userID, "guilds", len(r.Guilds))
}

// NewSession returns an unopened gateway session with the intents needed
// for voice.
func NewSession(token string, ready ReadyHandler) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if ready != nil {
		s.AddHandler(ready)
	}
	return s, nil
}

// MaxAttendedChannel returns the channel with the most members in it.
// This returns nil if no channel has any members.
func MaxAttendedChannel(channels []*discordgo.Channel) *discordgo.Channel {
	var maxAttendedChannel *discordgo.Channel
	maxAttended := -1

	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}

		if len(channel.Members) > maxAttended {
			maxAttendedChannel = channel
			maxAttended = len(channel.Members)
		}
	}

	return maxAttendedChannel
}

// Gateway opens voice connections through a discordgo session.
type Gateway struct {
	session *discordgo.Session
	clock   clock.Clock

	mu    sync.Mutex
	conns map[uint64]*Connection
}

func NewGateway(session *discordgo.Session) *Gateway {
	return &Gateway{session: session, clock: clock.New(), conns: make(map[uint64]*Connection)}
}

// Join connects to channelID in guildID. An empty channelID picks the most
// attended voice channel of the guild.
func (g *Gateway) Join(ctx context.Context, guildID uint64, channelID string) (*Connection, error) {
	guild := strconv.FormatUint(guildID, 10)

	if channelID == "" {
		channels, err := g.session.GuildChannels(guild, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("unable to list guild channels: %w", err)
		}
		channel := MaxAttendedChannel(channels)
		if channel == nil {
			return nil, ErrNoVoiceChannel
		}
		channelID = channel.ID
	}

	slog.Debug("joining voice channel", "guildID", guild, "channelID", channelID)
	vc, err := g.session.ChannelVoiceJoin(guild, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("unable to join the voice channel: %w", err)
	}

	if err := vc.Speaking(true); err != nil {
		if !g.holds(guildID, vc) {
			if derr := vc.Disconnect(); derr != nil {
				slog.Error("failed to disconnect", "error", derr)
			}
		}
		return nil, fmt.Errorf("error setting speaking state to 'true': %w", err)
	}

	return g.connection(guildID, vc, channelID), nil
}

// connection returns the guild's Connection for vc. discordgo keeps one
// VoiceConnection per guild and moves it between channels, so an open
// Connection around the same vc is reused rather than replaced.
func (g *Gateway) connection(guildID uint64, vc *discordgo.VoiceConnection, channelID string) *Connection {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.conns[guildID]; ok && existing.vc == vc && existing.moveTo(channelID) {
		return existing
	}
	conn := &Connection{
		gateway:   g,
		session:   g.session,
		vc:        vc,
		clock:     g.clock,
		guildID:   guildID,
		channelID: channelID,
	}
	g.conns[guildID] = conn
	return conn
}

// holds reports whether an open Connection of the guild wraps vc.
func (g *Gateway) holds(guildID uint64, vc *discordgo.VoiceConnection) bool {
	g.mu.Lock()
	existing, ok := g.conns[guildID]
	g.mu.Unlock()
	if !ok || existing.vc != vc {
		return false
	}
	existing.mu.Lock()
	defer existing.mu.Unlock()
	return !existing.closed
}

func (g *Gateway) forget(conn *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[conn.guildID] == conn {
		delete(g.conns, conn.guildID)
	}
}

// Connection is one guild's voice connection.
type Connection struct {
	gateway *Gateway
	session *discordgo.Session
	vc      *discordgo.VoiceConnection
	clock   clock.Clock
	guildID uint64

	mu        sync.Mutex
	channelID string
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

// moveTo records a channel move and reports false once the connection is
// closed.
func (c *Connection) moveTo(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.channelID = channelID
	return true
}

// Ping is the gateway heartbeat round trip.
func (c *Connection) Ping() time.Duration {
	return c.session.HeartbeatLatency()
}

func (c *Connection) IsOpen() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

// Provide starts pacing frames from provider into the connection, replacing
// any previous provider.
func (c *Connection) Provide(provider opus.FrameProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		err := opus.Pump(ctx, c.clock, provider, c.vc.OpusSend)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("voice pump stopped", "guildID", c.guildID, slog.Any("error", err))
		}
	}()
}

func (c *Connection) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

// Close stops the pump and leaves the channel.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopLocked()
	c.mu.Unlock()
	if c.gateway != nil {
		c.gateway.forget(c)
	}

	if err := c.vc.Speaking(false); err != nil {
		slog.Warn("failed to stop speaking", "guildID", c.guildID, "error", err)
	}
	if err := c.vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}
