package opus_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/opus"
	"github.com/google/go-cmp/cmp"
)

func TestFrameReaderRoundTrip(t *testing.T) {
	frames := [][]byte{
		{0xf8, 0xff, 0xfe},
		bytes.Repeat([]byte{0x42}, 300),
		{},
	}

	var buf bytes.Buffer
	for _, frame := range frames {
		if err := opus.WriteFrame(&buf, frame); err != nil {
			t.Fatalf("WriteFrame() returned error: %v", err)
		}
	}

	reader := opus.NewFrameReader(&buf)
	var got [][]byte
	for {
		frame, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame() returned error: %v", err)
		}
		got = append(got, frame)
	}

	if diff := cmp.Diff(frames, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	if err := opus.WriteFrame(io.Discard, make([]byte, 70000)); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	reader := opus.NewFrameReader(bytes.NewReader([]byte{10, 0, 1, 2}))
	if _, err := reader.ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadFrame() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

var oggCRCTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for range 8 {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

// oggPage builds a single-packet Ogg page. Packets must be shorter than 255
// bytes so they fit one lacing value.
func oggPage(headerType byte, sequence uint32, granule int64, packet []byte) []byte {
	var page bytes.Buffer
	page.WriteString("OggS")
	page.WriteByte(0)
	page.WriteByte(headerType)
	binary.Write(&page, binary.LittleEndian, granule)
	binary.Write(&page, binary.LittleEndian, uint32(0x5eed))
	binary.Write(&page, binary.LittleEndian, sequence)
	binary.Write(&page, binary.LittleEndian, uint32(0))
	page.WriteByte(1)
	page.WriteByte(byte(len(packet)))
	page.Write(packet)

	raw := page.Bytes()
	var crc uint32
	for _, b := range raw {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	binary.LittleEndian.PutUint32(raw[22:26], crc)
	return raw
}

func TestOggReaderSkipsHeaders(t *testing.T) {
	audio := [][]byte{{0xfc, 0x01}, {0xfc, 0x02, 0x03}, {0xfc, 0x04}}

	var stream bytes.Buffer
	stream.Write(oggPage(0x02, 0, 0, []byte("OpusHead\x01\x02\x38\x01\x80\xbb\x00\x00\x00\x00\x00")))
	stream.Write(oggPage(0x00, 1, 0, []byte("OpusTags\x00\x00\x00\x00\x00\x00\x00\x00")))
	for i, packet := range audio {
		headerType := byte(0)
		if i == len(audio)-1 {
			headerType = 0x04
		}
		stream.Write(oggPage(headerType, uint32(i+2), int64(960*(i+1)), packet))
	}

	reader := opus.NewOggReader(&stream)
	var got [][]byte
	for {
		frame, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame() returned error: %v", err)
		}
		got = append(got, frame)
	}

	if diff := cmp.Diff(audio, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
}

type sliceProvider struct {
	mu      sync.Mutex
	frames  [][]byte
	current []byte
	misses  int
}

func (p *sliceProvider) TryProduce() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		p.misses++
		return false
	}
	p.current, p.frames = p.frames[0], p.frames[1:]
	return true
}

func (p *sliceProvider) TakeProduced() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := p.current
	p.current = nil
	return frame
}

func (p *sliceProvider) Misses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.misses
}

func TestPumpDeliversFramesInOrder(t *testing.T) {
	mock := clock.NewMock()
	provider := &sliceProvider{frames: [][]byte{{1}, {2}, {3}}}
	out := make(chan []byte, 8)

	ctx, cancel := context.WithCancel(t.Context())
	errs := make(chan error, 1)
	go func() { errs <- opus.Pump(ctx, mock, provider, out) }()

	var got [][]byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 3 || provider.Misses() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, got %d frames", len(got))
		}
		mock.Add(opus.FrameDuration)
		for drained := false; !drained; {
			select {
			case frame := <-out:
				got = append(got, frame)
			default:
				drained = true
			}
		}
	}

	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Errorf("Pump() error = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([][]byte{{1}, {2}, {3}}, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestPumpStalledTransport(t *testing.T) {
	mock := clock.NewMock()
	provider := &sliceProvider{frames: [][]byte{{1}, {2}}}
	out := make(chan []byte)

	errs := make(chan error, 1)
	go func() { errs <- opus.Pump(t.Context(), mock, provider, out) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case err := <-errs:
			if !errors.Is(err, opus.ErrVoiceConnClosed) {
				t.Fatalf("Pump() error = %v, want ErrVoiceConnClosed", err)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Pump() never gave up on a stalled transport")
		}
		mock.Add(opus.FrameDuration)
		mock.Add(opus.SendTimeout)
	}
}
