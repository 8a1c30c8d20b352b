package socket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/glizzus/soundlink/internal/player"
)

// Millis is a duration in milliseconds. Controllers send it either as a
// number or as a numeric string.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid millisecond value %s: %w", data, err)
	}
	*m = Millis(v)
	return nil
}

func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// request is any message a controller sends. Only the fields its op uses
// are set.
type request struct {
	Op        string `json:"op"`
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`

	Track      string `json:"track"`
	Identifier string `json:"identifier"`
	StartTime  Millis `json:"startTime"`
	EndTime    Millis `json:"endTime"`
	Volume     *int   `json:"volume"`
	NoReplace  bool   `json:"noReplace"`
	Pause      *bool  `json:"pause"`
	Position   Millis `json:"position"`

	Key     string `json:"key"`
	Timeout int    `json:"timeout"`
}

type Info struct {
	Version string `json:"version"`
	Build   string `json:"build"`
	Go      string `json:"go"`
}

type Hello struct {
	Op        string `json:"op"`
	SessionID string `json:"sessionId"`
	Info      Info   `json:"info"`
}

type Resumed struct {
	Op        string `json:"op"`
	SessionID string `json:"sessionId"`
}

type VoiceConnectionReady struct {
	player.EventBase
	ChannelID string `json:"channelId"`
}

type VoiceConnectionClosed struct {
	player.EventBase
	Reason   *string `json:"reason"`
	Code     int     `json:"code"`
	ByRemote bool    `json:"byRemote"`
}

const (
	EventVoiceConnectionReady  = "VoiceConnectionReady"
	EventVoiceConnectionClosed = "VoiceConnectionClosed"
)

func eventBase(event string, guildID uint64) player.EventBase {
	return player.EventBase{Op: "event", Event: event, GuildID: strconv.FormatUint(guildID, 10)}
}

// stripControlFields removes op and guildId from a filters message so only
// the filter settings remain.
func stripControlFields(raw []byte) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "op")
	delete(fields, "guildId")
	return json.Marshal(fields)
}
