package playback_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glizzus/soundlink/internal/datalayer"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/opus"
	"github.com/glizzus/soundlink/internal/playback"
)

func encodeFrames(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := range n {
		if err := opus.WriteFrame(&buf, []byte{byte(i), 0xfc}); err != nil {
			t.Fatalf("WriteFrame() returned error: %v", err)
		}
	}
	return buf.Bytes()
}

func readAll(t *testing.T, source playback.Source, info engine.TrackInfo) int {
	t.Helper()
	frames, closer, err := source.Open(t.Context(), info)
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer closer.Close()

	var count int
	for {
		frame, err := frames.ReadFrame()
		if errors.Is(err, io.EOF) {
			return count
		}
		if err != nil {
			t.Fatalf("ReadFrame() returned error: %v", err)
		}
		if frame[0] != byte(count) {
			t.Fatalf("frame %d starts with %d", count, frame[0])
		}
		count++
	}
}

func TestFileSource(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "albums"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "albums", "intro.frames"), encodeFrames(t, 50), 0o644); err != nil {
		t.Fatal(err)
	}
	source := playback.NewFileSource(root)

	if source.Match("../etc/passwd") {
		t.Error("Match() accepted a path outside the root")
	}
	if _, err := source.Resolve(t.Context(), "albums"); !errors.Is(err, playback.ErrNoMatch) {
		t.Errorf("Resolve(dir) error = %v, want ErrNoMatch", err)
	}
	if _, err := source.Resolve(t.Context(), "missing.ogg"); !errors.Is(err, playback.ErrNoMatch) {
		t.Errorf("Resolve(missing) error = %v, want ErrNoMatch", err)
	}

	info, err := source.Resolve(t.Context(), "albums/intro.frames")
	if err != nil {
		t.Fatalf("Resolve() returned error: %v", err)
	}
	if info.Title != "intro" || info.SourceName != "local" {
		t.Errorf("info = %+v", info)
	}
	if info.Length <= 0 {
		t.Errorf("Length = %s, want an estimate", info.Length)
	}
	if got := readAll(t, source, info); got != 50 {
		t.Errorf("read %d frames, want 50", got)
	}
}

func TestHTTPSource(t *testing.T) {
	payload := encodeFrames(t, 12)
	mux := http.NewServeMux()
	mux.HandleFunc("/songs/loop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-opus-frames")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(payload)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := playback.NewHTTPSource(server.Client())

	tests := []struct {
		name      string
		path      string
		wantErr   bool
		wantMatch bool
	}{
		{name: "found", path: "/songs/loop"},
		{name: "not found", path: "/nothing", wantErr: true, wantMatch: true},
		{name: "forbidden", path: "/private", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identifier := server.URL + tt.path
			if !source.Match(identifier) {
				t.Fatalf("Match(%q) = false", identifier)
			}
			info, err := source.Resolve(t.Context(), identifier)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Resolve() returned no error")
				}
				if got := errors.Is(err, playback.ErrNoMatch); got != tt.wantMatch {
					t.Errorf("errors.Is(err, ErrNoMatch) = %v, want %v", got, tt.wantMatch)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() returned error: %v", err)
			}
			if info.Title != "loop" {
				t.Errorf("Title = %q, want loop", info.Title)
			}
			if got := readAll(t, source, info); got != 12 {
				t.Errorf("read %d frames, want 12", got)
			}
		})
	}
}

type memoryBlobs map[string][]byte

func (m memoryBlobs) Put(_ context.Context, key string, data io.Reader, _ datalayer.PutOptions) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

func (m memoryBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m[key]
	if !ok {
		return nil, datalayer.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m memoryBlobs) Stat(_ context.Context, key string) (datalayer.BlobInfo, error) {
	b, ok := m[key]
	if !ok {
		return datalayer.BlobInfo{}, datalayer.ErrBlobNotFound
	}
	return datalayer.BlobInfo{Key: key, Size: int64(len(b))}, nil
}

var _ datalayer.BlobStorage = memoryBlobs{}

func TestBlobSource(t *testing.T) {
	blobs := memoryBlobs{}
	if err := blobs.Put(t.Context(), "jingles/ding", bytes.NewReader(encodeFrames(t, 7)), datalayer.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	source := playback.NewBlobSource(blobs)

	if source.Match("jingles/ding") {
		t.Error("Match() accepted an identifier without the blob prefix")
	}
	if _, err := source.Resolve(t.Context(), "blob:jingles/missing"); !errors.Is(err, playback.ErrNoMatch) {
		t.Errorf("Resolve(missing) error = %v, want ErrNoMatch", err)
	}

	info, err := source.Resolve(t.Context(), "blob:jingles/ding")
	if err != nil {
		t.Fatalf("Resolve() returned error: %v", err)
	}
	if info.Title != "ding" || info.SourceName != "blob" {
		t.Errorf("info = %+v", info)
	}
	if got := readAll(t, source, info); got != 7 {
		t.Errorf("read %d frames, want 7", got)
	}
}

func TestManagerSourceOrder(t *testing.T) {
	blobs := memoryBlobs{"a": encodeFrames(t, 3)}
	root := t.TempDir()
	manager := playback.NewManager(playback.Config{},
		playback.WithSource(playback.NewBlobSource(blobs)),
		playback.WithSource(playback.NewFileSource(root)),
	)

	track := loadTrack(t, manager, "blob:a")
	if got := track.Info().SourceName; got != "blob" {
		t.Errorf("SourceName = %q, want blob", got)
	}

	player := manager.CreatePlayer()
	player.PlayTrack(track)
	frames := pull(t, player, 3)
	if got := frames[2].Timecode; got != 40*time.Millisecond {
		t.Errorf("last timecode = %s, want 40ms", got)
	}
	player.Destroy()
}
