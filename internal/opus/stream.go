package opus

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// FrameDuration is the pacing of the voice transport.
const FrameDuration = 20 * time.Millisecond

// SendTimeout bounds how long Pump waits on a stalled transport.
const SendTimeout = time.Minute

var ErrVoiceConnClosed = errors.New("voice connection send timeout")

// FrameProvider is polled once per frame interval. TakeProduced is only
// called after TryProduce reported true.
type FrameProvider interface {
	TryProduce() bool
	TakeProduced() []byte
}

// Pump polls provider every FrameDuration and sends the frames it produces
// to out, typically a discordgo voice connection's OpusSend channel. It
// returns when ctx is done or the transport stops accepting frames.
func Pump(ctx context.Context, clk clock.Clock, provider FrameProvider, out chan<- []byte) error {
	if clk == nil {
		clk = clock.New()
	}
	ticker := clk.Ticker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !provider.TryProduce() {
			continue
		}
		frame := provider.TakeProduced()

		timer := clk.Timer(SendTimeout)
		select {
		case out <- frame:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			return ErrVoiceConnClosed
		}
	}
}
