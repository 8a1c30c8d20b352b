package player

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/glizzus/soundlink/internal/engine"
)

// Event names as seen by the controller.
const (
	EventPlayerPause    = "PlayerPauseEvent"
	EventPlayerResume   = "PlayerResumeEvent"
	EventTrackStart     = "TrackStartEvent"
	EventTrackEnd       = "TrackEndEvent"
	EventTrackException = "TrackExceptionEvent"
	EventTrackStuck     = "TrackStuckEvent"
)

// EventBase is embedded in every event notification.
type EventBase struct {
	Op      string `json:"op"`
	Event   string `json:"event"`
	GuildID string `json:"guildId"`
}

// Track fields hold the encoded track and are null when encoding failed.

type TrackStartEvent struct {
	EventBase
	Track *string `json:"track"`
}

type TrackEndEvent struct {
	EventBase
	Track  *string `json:"track"`
	Reason string  `json:"reason"`
}

type TrackException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

type TrackExceptionEvent struct {
	EventBase
	Track     *string        `json:"track"`
	Exception TrackException `json:"exception"`
}

type TrackStuckEvent struct {
	EventBase
	Track       *string `json:"track"`
	ThresholdMs int64   `json:"thresholdMs"`
}

// emitter turns engine callbacks into notifications for one Player.
type emitter struct {
	player *Player
}

func (e *emitter) base(event string) EventBase {
	return EventBase{
		Op:      "event",
		Event:   event,
		GuildID: strconv.FormatUint(e.player.guildID, 10),
	}
}

func (e *emitter) encode(track engine.Track) *string {
	if track == nil {
		return nil
	}
	encoded, err := e.player.manager.EncodeTrack(track)
	if err != nil {
		slog.Debug("failed to encode track", "guildID", e.player.guildID, slog.Any("error", err))
		return nil
	}
	return &encoded
}

func (e *emitter) OnPlayerPause(engine.Player) {
	e.player.socket.Send(e.base(EventPlayerPause))
}

func (e *emitter) OnPlayerResume(engine.Player) {
	e.player.socket.Send(e.base(EventPlayerResume))
}

func (e *emitter) OnTrackStart(_ engine.Player, track engine.Track) {
	e.player.socket.Send(TrackStartEvent{
		EventBase: e.base(EventTrackStart),
		Track:     e.encode(track),
	})
	e.player.services.HandleTrackStart(track)
}

func (e *emitter) OnTrackEnd(_ engine.Player, track engine.Track, reason engine.TrackEndReason) {
	reported := reason
	if e.player.takeEndMarkerHit() {
		reported = engine.EndFinished
	}
	e.player.socket.Send(TrackEndEvent{
		EventBase: e.base(EventTrackEnd),
		Track:     e.encode(track),
		Reason:    reported.String(),
	})
	e.player.services.HandleTrackEnd(track, reason)
}

// The engine logs exceptions itself.
func (e *emitter) OnTrackException(_ engine.Player, track engine.Track, err *engine.FriendlyError) {
	exception := TrackException{Severity: engine.SeverityFault.String()}
	if err != nil {
		exception.Message = err.Message
		exception.Severity = err.Severity.String()
		if cause := engine.RootCause(err); cause != nil {
			exception.Cause = cause.Error()
		}
	}
	slog.Debug("track exception", "guildID", e.player.guildID, "message", exception.Message, "cause", exception.Cause)

	e.player.socket.Send(TrackExceptionEvent{
		EventBase: e.base(EventTrackException),
		Track:     e.encode(track),
		Exception: exception,
	})
}

func (e *emitter) OnTrackStuck(_ engine.Player, track engine.Track, threshold time.Duration) {
	title := ""
	if track != nil {
		title = track.Info().Title
	}
	slog.Warn("track got stuck", "guildID", e.player.guildID, "title", title, "thresholdMs", threshold.Milliseconds())

	e.player.socket.Send(TrackStuckEvent{
		EventBase:   e.base(EventTrackStuck),
		Track:       e.encode(track),
		ThresholdMs: threshold.Milliseconds(),
	})
	e.player.SendUpdate()
}

var _ engine.Listener = (*emitter)(nil)
