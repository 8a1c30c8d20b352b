package voice_test

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundlink/internal/voice"
)

func TestMaxAttendedChannel(t *testing.T) {
	member := func() *discordgo.ThreadMember { return &discordgo.ThreadMember{} }

	table := []struct {
		name     string
		channels []*discordgo.Channel
		want     string
	}{
		{
			name:     "no channels",
			channels: nil,
			want:     "",
		},
		{
			name: "text channels are ignored",
			channels: []*discordgo.Channel{
				{ID: "text", Type: discordgo.ChannelTypeGuildText, Members: []*discordgo.ThreadMember{member(), member()}},
				{ID: "voice", Type: discordgo.ChannelTypeGuildVoice},
			},
			want: "voice",
		},
		{
			name: "busiest voice channel wins",
			channels: []*discordgo.Channel{
				{ID: "quiet", Type: discordgo.ChannelTypeGuildVoice, Members: []*discordgo.ThreadMember{member()}},
				{ID: "busy", Type: discordgo.ChannelTypeGuildVoice, Members: []*discordgo.ThreadMember{member(), member(), member()}},
			},
			want: "busy",
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got := voice.MaxAttendedChannel(tc.channels)
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tc.want {
				t.Errorf("MaxAttendedChannel() = %q, want %q", gotID, tc.want)
			}
		})
	}
}
