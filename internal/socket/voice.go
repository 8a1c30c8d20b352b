package socket

import (
	"context"

	"github.com/glizzus/soundlink/internal/opus"
	"github.com/glizzus/soundlink/internal/player"
)

// VoiceConnection is a guild's connection to a voice channel.
type VoiceConnection interface {
	player.VoiceLink
	ChannelID() string
	// Provide starts sending frames from provider, replacing any previous
	// provider.
	Provide(provider opus.FrameProvider)
	Close() error
}

type VoiceGateway interface {
	Join(ctx context.Context, guildID uint64, channelID string) (VoiceConnection, error)
}

// JoinFunc adapts a function to VoiceGateway.
type JoinFunc func(ctx context.Context, guildID uint64, channelID string) (VoiceConnection, error)

func (f JoinFunc) Join(ctx context.Context, guildID uint64, channelID string) (VoiceConnection, error) {
	return f(ctx, guildID, channelID)
}

var _ VoiceGateway = JoinFunc(nil)
