package opus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jonas747/ogg"
)

// FrameSource yields raw Opus frames one at a time. ReadFrame returns io.EOF
// once the source is exhausted.
type FrameSource interface {
	ReadFrame() ([]byte, error)
}

// FrameReader reads length-prefixed Opus frames from an io.Reader.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader returns a new FrameReader that reads from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads and returns the next raw Opus frame.
// Returns io.EOF when there are no more frames.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	var size uint16
	if err := binary.Read(f.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

var _ FrameSource = (*FrameReader)(nil)

// WriteFrame writes frame to w in the length-prefixed format read by
// FrameReader.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > math.MaxUint16 {
		return fmt.Errorf("frame too large: %d bytes", len(frame))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

// OggReader reads Opus packets out of an Ogg container, skipping the
// OpusHead and OpusTags header packets.
type OggReader struct {
	decoder *ogg.PacketDecoder
	skip    int
}

// NewOggReader returns an OggReader that demuxes r.
func NewOggReader(r io.Reader) *OggReader {
	return &OggReader{
		decoder: ogg.NewPacketDecoder(ogg.NewDecoder(r)),
		skip:    2,
	}
}

func (o *OggReader) ReadFrame() ([]byte, error) {
	for {
		packet, _, err := o.decoder.Decode()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if o.skip > 0 {
			o.skip--
			continue
		}
		frame := make([]byte, len(packet))
		copy(frame, packet)
		return frame, nil
	}
}

var _ FrameSource = (*OggReader)(nil)
