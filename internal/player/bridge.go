package player

import (
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/loss"
	"github.com/glizzus/soundlink/internal/opus"
)

// FrameBridge adapts the engine's Provide to the voice pump's two-step pull.
// It is used from the pump goroutine only.
type FrameBridge struct {
	engine engine.Player
	loss   *loss.Counter
	last   []byte
}

func newFrameBridge(player engine.Player, counter *loss.Counter) *FrameBridge {
	return &FrameBridge{engine: player, loss: counter}
}

// TryProduce pulls one frame from the engine and reports whether one was
// available.
func (b *FrameBridge) TryProduce() bool {
	frame, ok := b.engine.Provide()
	if !ok {
		b.last = nil
		b.loss.OnLoss()
		return false
	}
	b.last = frame.Data
	return true
}

// TakeProduced returns the frame pulled by the last successful TryProduce.
func (b *FrameBridge) TakeProduced() []byte {
	b.loss.OnSuccess()
	out := make([]byte, len(b.last))
	copy(out, b.last)
	b.last = nil
	return out
}

var _ opus.FrameProvider = (*FrameBridge)(nil)
