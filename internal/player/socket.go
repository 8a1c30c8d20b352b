package player

import (
	"time"

	"github.com/glizzus/soundlink/internal/schedule"
)

// Socket is the control session a Player reports to.
type Socket interface {
	// Send delivers payload to the controller. It must not block on the
	// network.
	Send(payload any)
	// SessionPaused reports whether the controller is disconnected and
	// outgoing messages are being held for a resume.
	SessionPaused() bool
	PlayerUpdateScheduler() *schedule.Scheduler
	ExistingVoiceLink(guildID uint64) (VoiceLink, bool)
}

// VoiceLink is the voice connection of a guild, if one exists.
type VoiceLink interface {
	Ping() time.Duration
	IsOpen() bool
}
