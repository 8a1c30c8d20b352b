package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const trackCodecVersion = 1

var ErrUnsupportedTrackVersion = errors.New("unsupported encoded track version")

// EncodeTrackInfo serializes info and position into the base64 descriptor
// sent to controllers. Engines use it to implement Manager.EncodeTrack.
func EncodeTrackInfo(info TrackInfo, position time.Duration) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte(trackCodecVersion)

	for _, s := range []string{info.Title, info.Author} {
		if err := writeString(&buf, s); err != nil {
			return "", err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, info.Length.Milliseconds()); err != nil {
		return "", err
	}
	if err := writeString(&buf, info.Identifier); err != nil {
		return "", err
	}
	if info.IsStream {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	for _, s := range []string{info.URI, info.SourceName} {
		if err := writeString(&buf, s); err != nil {
			return "", err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, position.Milliseconds()); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeTrackInfo reverses EncodeTrackInfo.
func DecodeTrackInfo(encoded string) (TrackInfo, time.Duration, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return TrackInfo{}, 0, fmt.Errorf("invalid track encoding: %w", err)
	}
	r := bytes.NewReader(raw)

	version, err := r.ReadByte()
	if err != nil {
		return TrackInfo{}, 0, fmt.Errorf("failed to read version: %w", err)
	}
	if version != trackCodecVersion {
		return TrackInfo{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedTrackVersion, version)
	}

	var info TrackInfo
	var lengthMs, positionMs int64
	if info.Title, err = readString(r); err != nil {
		return TrackInfo{}, 0, err
	}
	if info.Author, err = readString(r); err != nil {
		return TrackInfo{}, 0, err
	}
	if err := binary.Read(r, binary.BigEndian, &lengthMs); err != nil {
		return TrackInfo{}, 0, fmt.Errorf("failed to read length: %w", err)
	}
	if info.Identifier, err = readString(r); err != nil {
		return TrackInfo{}, 0, err
	}
	stream, err := r.ReadByte()
	if err != nil {
		return TrackInfo{}, 0, fmt.Errorf("failed to read stream flag: %w", err)
	}
	info.IsStream = stream == 1
	if info.URI, err = readString(r); err != nil {
		return TrackInfo{}, 0, err
	}
	if info.SourceName, err = readString(r); err != nil {
		return TrackInfo{}, 0, err
	}
	if err := binary.Read(r, binary.BigEndian, &positionMs); err != nil {
		return TrackInfo{}, 0, fmt.Errorf("failed to read position: %w", err)
	}

	info.Length = time.Duration(lengthMs) * time.Millisecond
	return info, time.Duration(positionMs) * time.Millisecond, nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string field too long: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var size uint16
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return "", fmt.Errorf("failed to read string length: %w", err)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("failed to read string: %w", err)
	}
	return string(b), nil
}
