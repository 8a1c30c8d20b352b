package player

import (
	"math"
	"strconv"

	"github.com/glizzus/soundlink/internal/loss"
)

type FrameStats struct {
	Sent    int  `json:"sent"`
	Nulled  int  `json:"nulled"`
	Deficit int  `json:"deficit"`
	Usable  bool `json:"usable"`
}

// State is a point-in-time snapshot of a Player. Position is set only while
// a track is loaded; Ping and Connected only while a voice link exists.
type State struct {
	Time       int64      `json:"time"`
	Position   *int64     `json:"position,omitempty"`
	Ping       *int64     `json:"ping,omitempty"`
	Connected  *bool      `json:"connected,omitempty"`
	Playing    bool       `json:"playing"`
	Paused     bool       `json:"paused"`
	Volume     int        `json:"volume"`
	Services   any        `json:"services"`
	Filters    any        `json:"filters"`
	FrameStats FrameStats `json:"frameStats"`
}

// Update is the playerUpdate message.
type Update struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId"`
	State   State  `json:"state"`
}

// State assembles a snapshot. It only reads.
func (p *Player) State() State {
	state := State{
		Time:     p.clock.Now().UnixMilli(),
		Playing:  p.IsPlaying(),
		Paused:   p.engine.IsPaused(),
		Volume:   p.engine.Volume(),
		Services: p.services.Encode(),
		Filters:  p.filters.Encode(),
	}

	if track := p.engine.PlayingTrack(); track != nil {
		position := int64(math.Round(float64(track.Position().Milliseconds()) * p.filters.Speed()))
		state.Position = &position
	}

	if link, ok := p.socket.ExistingVoiceLink(p.guildID); ok && link != nil {
		ping := link.Ping().Milliseconds()
		connected := link.IsOpen()
		state.Ping = &ping
		state.Connected = &connected
	}

	sent := p.loss.LastMinuteSent()
	nulled := p.loss.LastMinuteNulled()
	state.FrameStats = FrameStats{
		Sent:    sent,
		Nulled:  nulled,
		Deficit: loss.ExpectedPacketCountPerMin - (sent + nulled),
		Usable:  p.loss.IsDataUsable(),
	}
	return state
}

// SendUpdate pushes a playerUpdate to the controller now, outside the
// periodic schedule.
func (p *Player) SendUpdate() {
	p.socket.Send(Update{
		Op:      "playerUpdate",
		GuildID: strconv.FormatUint(p.guildID, 10),
		State:   p.State(),
	})
}
