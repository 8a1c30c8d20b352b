package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/loader"
	"github.com/glizzus/soundlink/internal/player"
)

const (
	connectTimeout = 15 * time.Second
	loadTimeout    = 30 * time.Second
)

var ErrVoiceUnavailable = errors.New("voice is not configured on this node")

func (s *Server) handle(c *Context, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("Ignoring malformed message", "sessionID", c.SessionID(), "error", err)
		return
	}
	slog.Debug("Received op", "sessionID", c.SessionID(), "op", req.Op, "guildID", req.GuildID)

	if req.Op == "configureResuming" {
		c.ConfigureResuming(req.Key, time.Duration(req.Timeout)*time.Second)
		return
	}

	guildID, err := strconv.ParseUint(req.GuildID, 10, 64)
	if err != nil {
		slog.Warn("Ignoring op with invalid guild id", "sessionID", c.SessionID(), "op", req.Op, "guildID", req.GuildID)
		return
	}

	switch req.Op {
	case "connect":
		go s.connect(c, guildID, req.ChannelID)
	case "disconnect":
		c.Disconnect(guildID, "disconnected by controller")
	case "play":
		s.play(c, guildID, req)
	case "destroy":
		c.DestroyPlayer(guildID)
	case "stop", "pause", "seek", "volume", "filters":
		p, ok := c.ExistingPlayer(guildID)
		if !ok {
			slog.Warn("Ignoring op for guild without a player", "sessionID", c.SessionID(), "op", req.Op, "guildID", guildID)
			return
		}
		if err := s.control(p, req, data); err != nil {
			slog.Warn("Op failed", "sessionID", c.SessionID(), "op", req.Op, "guildID", guildID, "error", err)
		}
	default:
		slog.Warn("Unknown op", "sessionID", c.SessionID(), "op", req.Op)
	}
}

func (s *Server) connect(c *Context, guildID uint64, channelID string) {
	var err error
	if s.voice == nil {
		err = ErrVoiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(c.ctx, connectTimeout)
		err = c.Connect(ctx, guildID, channelID)
		cancel()
	}
	if err == nil {
		return
	}

	slog.Error("Failed to connect to voice", "sessionID", c.SessionID(), "guildID", guildID, "error", err)
	reason := err.Error()
	c.Send(VoiceConnectionClosed{
		EventBase: eventBase(EventVoiceConnectionClosed, guildID),
		Reason:    &reason,
		Code:      1006,
	})
}

// control runs the ops that act on an existing player.
func (s *Server) control(p *player.Player, req request, raw []byte) error {
	switch req.Op {
	case "stop":
		return p.Stop()
	case "pause":
		if req.Pause == nil {
			return fmt.Errorf("pause requires a pause field")
		}
		if err := p.SetPause(*req.Pause); err != nil {
			return err
		}
	case "seek":
		if err := p.SeekTo(req.Position.Duration()); err != nil {
			return err
		}
	case "volume":
		if req.Volume == nil {
			return fmt.Errorf("volume requires a volume field")
		}
		if err := p.SetVolume(*req.Volume); err != nil {
			return err
		}
	case "filters":
		filters, err := stripControlFields(raw)
		if err != nil {
			return err
		}
		if err := p.UpdateFilters(filters); err != nil {
			return err
		}
	}
	p.SendUpdate()
	return nil
}

func (s *Server) play(c *Context, guildID uint64, req request) {
	p := c.Player(guildID)

	if req.Track != "" {
		track, err := s.manager.DecodeTrack(req.Track)
		if err != nil {
			slog.Warn("Failed to decode track", "sessionID", c.SessionID(), "guildID", guildID, "error", err)
			return
		}
		s.startTrack(c, p, track, req)
		return
	}
	if req.Identifier == "" {
		slog.Warn("play requires a track or an identifier", "sessionID", c.SessionID(), "guildID", guildID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, loadTimeout)
		defer cancel()

		future, err := loader.New(s.manager).Load(req.Identifier)
		if err != nil {
			slog.Error("Failed to start loading", "identifier", req.Identifier, "error", err)
			return
		}
		result, err := future.Wait(ctx)
		if err != nil {
			slog.Warn("Gave up loading", "identifier", req.Identifier, "error", err)
			return
		}

		track, failure := pick(req.Identifier, result)
		if track == nil {
			c.Send(player.TrackExceptionEvent{
				EventBase: eventBase(player.EventTrackException, guildID),
				Exception: failure,
			})
			return
		}
		s.startTrack(c, p, track, req)
	}()
}

// pick chooses the track a play op starts from a resolution: the track
// itself, or the selected (else first) entry of a playlist.
func pick(identifier string, result loader.Result) (engine.Track, player.TrackException) {
	switch result.Kind {
	case loader.KindTrack:
		return result.Track, player.TrackException{}
	case loader.KindPlaylist:
		tracks := result.Playlist.Tracks
		if selected := result.Playlist.SelectedTrack; selected >= 0 && selected < len(tracks) {
			return tracks[selected], player.TrackException{}
		}
		if len(tracks) > 0 {
			return tracks[0], player.TrackException{}
		}
	case loader.KindFailed:
		exception := player.TrackException{
			Message:  result.Err.Message,
			Severity: result.Err.Severity.String(),
		}
		if cause := engine.RootCause(result.Err); cause != nil {
			exception.Cause = cause.Error()
		}
		return nil, exception
	}
	return nil, player.TrackException{
		Message:  "No matches found for " + identifier,
		Severity: engine.SeverityCommon.String(),
	}
}

func (s *Server) startTrack(c *Context, p *player.Player, track engine.Track, req request) {
	if req.NoReplace && p.IsPlaying() {
		slog.Debug("Skipping play with noReplace", "sessionID", c.SessionID(), "guildID", p.GuildID())
		return
	}
	if req.Volume != nil {
		if err := p.SetVolume(*req.Volume); err != nil {
			slog.Warn("Failed to set volume", "guildID", p.GuildID(), "error", err)
			return
		}
	}
	if req.StartTime > 0 {
		track.SetPosition(req.StartTime.Duration())
	}
	if req.EndTime > 0 {
		p.InstallEndMarker(track, req.EndTime.Duration())
	}
	if req.Pause != nil {
		if err := p.SetPause(*req.Pause); err != nil {
			slog.Warn("Failed to set pause", "guildID", p.GuildID(), "error", err)
			return
		}
	}
	if _, err := p.Start(track, req.NoReplace); err != nil {
		slog.Warn("Failed to start track", "guildID", p.GuildID(), "error", err)
	}
}
