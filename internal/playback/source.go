package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/opus"
)

// ErrNoMatch is returned by a Source when identifier points at nothing.
var ErrNoMatch = errors.New("no matching item")

// Source resolves identifiers it recognizes and opens the audio behind them.
type Source interface {
	Name() string
	Match(identifier string) bool
	Resolve(ctx context.Context, identifier string) (engine.TrackInfo, error)
	// Open returns a frame source positioned at the start of the track.
	// The returned closer releases everything the source holds.
	Open(ctx context.Context, info engine.TrackInfo) (opus.FrameSource, io.Closer, error)
}

// Frame container formats, picked by extension or content type.
const (
	formatOgg    = "ogg"
	formatFrames = "frames"
	formatOther  = "other"
)

func formatOf(name, contentType string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".ogg", ".opus":
		return formatOgg
	case ".dca", ".frames":
		return formatFrames
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "audio/ogg", "audio/opus":
			return formatOgg
		case "application/x-opus-frames":
			return formatFrames
		}
	}
	return formatOther
}

// frames wraps body in the frame source matching format. Anything that is
// not already Opus is transcoded through ffmpeg.
func frames(ctx context.Context, format string, body io.ReadCloser) (opus.FrameSource, io.Closer, error) {
	switch format {
	case formatOgg:
		return opus.NewOggReader(body), body, nil
	case formatFrames:
		return opus.NewFrameReader(body), body, nil
	}
	encoded, err := opus.Encode(ctx, body)
	if err != nil {
		body.Close()
		return nil, nil, fmt.Errorf("failed to start transcoder: %w", err)
	}
	return opus.NewFrameReader(encoded), closers{encoded, body}, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, closer := range c {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

const blobPrefix = "blob:"

// BlobSource plays length-prefixed Opus frames stored in blob storage.
type BlobSource struct {
	storage datalayer.BlobStorage
}

func NewBlobSource(storage datalayer.BlobStorage) *BlobSource {
	return &BlobSource{storage: storage}
}

func (s *BlobSource) Name() string { return "blob" }

func (s *BlobSource) Match(identifier string) bool {
	return strings.HasPrefix(identifier, blobPrefix)
}

func (s *BlobSource) Resolve(ctx context.Context, identifier string) (engine.TrackInfo, error) {
	key := strings.TrimPrefix(identifier, blobPrefix)
	blob, err := s.storage.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, datalayer.ErrBlobNotFound) {
			return engine.TrackInfo{}, fmt.Errorf("%w: %v", ErrNoMatch, err)
		}
		return engine.TrackInfo{}, err
	}
	return engine.TrackInfo{
		Identifier: identifier,
		Title:      path.Base(key),
		Author:     "Unknown artist",
		Length:     frameLength(blob.Size),
		URI:        identifier,
		SourceName: s.Name(),
	}, nil
}

func (s *BlobSource) Open(ctx context.Context, info engine.TrackInfo) (opus.FrameSource, io.Closer, error) {
	body, err := s.storage.Get(ctx, strings.TrimPrefix(info.Identifier, blobPrefix))
	if err != nil {
		return nil, nil, err
	}
	return opus.NewFrameReader(body), body, nil
}

// averageFrameSize is the size of a 20ms frame at 64kbps plus its length
// prefix. Frame sizes vary, so lengths derived from it are estimates.
const averageFrameSize = 64000/8/50 + 2

func frameLength(size int64) time.Duration {
	return time.Duration(size/averageFrameSize) * opus.FrameDuration
}

var _ Source = (*BlobSource)(nil)

// HTTPSource plays audio served over http or https.
type HTTPSource struct {
	client *http.Client
}

func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Match(identifier string) bool {
	return strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://")
}

func (s *HTTPSource) Resolve(ctx context.Context, identifier string) (engine.TrackInfo, error) {
	u, err := url.Parse(identifier)
	if err != nil {
		return engine.TrackInfo{}, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, identifier, nil)
	if err != nil {
		return engine.TrackInfo{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return engine.TrackInfo{}, fmt.Errorf("failed to reach %s: %w", u.Host, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return engine.TrackInfo{}, fmt.Errorf("%w: %s", ErrNoMatch, identifier)
	case resp.StatusCode >= 300:
		return engine.TrackInfo{}, fmt.Errorf("unexpected status from %s: %s", u.Host, resp.Status)
	}

	title := path.Base(u.Path)
	if title == "/" || title == "." {
		title = u.Host
	}
	return engine.TrackInfo{
		Identifier: identifier,
		Title:      title,
		Author:     u.Host,
		IsStream:   resp.ContentLength < 0,
		URI:        identifier,
		SourceName: s.Name(),
	}, nil
}

func (s *HTTPSource) Open(ctx context.Context, info engine.TrackInfo) (opus.FrameSource, io.Closer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.Identifier, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", info.Identifier, err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("unexpected status fetching %s: %s", info.Identifier, resp.Status)
	}
	return frames(ctx, formatOf(req.URL.Path, resp.Header.Get("Content-Type")), resp.Body)
}

var _ Source = (*HTTPSource)(nil)

// FileSource plays files below a local directory. Identifiers are paths
// relative to that directory.
type FileSource struct {
	root string
}

func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

func (s *FileSource) Name() string { return "local" }

func (s *FileSource) Match(identifier string) bool {
	return filepath.IsLocal(identifier)
}

func (s *FileSource) Resolve(_ context.Context, identifier string) (engine.TrackInfo, error) {
	stat, err := os.Stat(filepath.Join(s.root, identifier))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine.TrackInfo{}, fmt.Errorf("%w: %s", ErrNoMatch, identifier)
		}
		return engine.TrackInfo{}, err
	}
	if stat.IsDir() {
		return engine.TrackInfo{}, fmt.Errorf("%w: %s is a directory", ErrNoMatch, identifier)
	}

	info := engine.TrackInfo{
		Identifier: identifier,
		Title:      strings.TrimSuffix(filepath.Base(identifier), filepath.Ext(identifier)),
		Author:     "Unknown artist",
		URI:        identifier,
		SourceName: s.Name(),
	}
	if formatOf(identifier, "") == formatFrames {
		info.Length = frameLength(stat.Size())
	}
	return info, nil
}

func (s *FileSource) Open(ctx context.Context, info engine.TrackInfo) (opus.FrameSource, io.Closer, error) {
	f, err := os.Open(filepath.Join(s.root, info.Identifier))
	if err != nil {
		return nil, nil, err
	}
	return frames(ctx, formatOf(info.Identifier, ""), f)
}

var _ Source = (*FileSource)(nil)
