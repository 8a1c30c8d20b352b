package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/glizzus/soundlink/internal/opus"
)

// stream reads one track's frames in the background into a bounded buffer.
type stream struct {
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}
	// err is written before done is closed.
	err error
}

func startStream(track *Track, from, buffer time.Duration) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	size := max(int(buffer/opus.FrameDuration), 1)
	s := &stream{
		cancel: cancel,
		frames: make(chan []byte, size),
		done:   make(chan struct{}),
	}
	go s.run(ctx, track, from)
	return s
}

func (s *stream) run(ctx context.Context, track *Track, from time.Duration) {
	defer close(s.done)

	source, closer, err := track.source.Open(ctx, track.info)
	if err != nil {
		s.err = fmt.Errorf("failed to open %s: %w", track.info.Identifier, err)
		return
	}
	defer func() {
		if err := closer.Close(); err != nil {
			slog.Debug("Failed to close track source", "identifier", track.info.Identifier, "error", err)
		}
	}()

	skip := int(from / opus.FrameDuration)
	for {
		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			s.err = fmt.Errorf("failed to read %s: %w", track.info.Identifier, err)
			return
		}
		if skip > 0 {
			skip--
			continue
		}
		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// next returns a buffered frame without blocking. over reports that the
// reader has finished and every frame it produced has been taken.
func (s *stream) next() (frame []byte, ok, over bool) {
	select {
	case frame = <-s.frames:
		return frame, true, false
	default:
	}
	select {
	case <-s.done:
	default:
		return nil, false, false
	}
	// done is closed after the last send, so anything left is buffered.
	select {
	case frame = <-s.frames:
		return frame, true, false
	default:
		return nil, false, true
	}
}

func (s *stream) stop() {
	s.cancel()
}
