package playback_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/opus"
	"github.com/glizzus/soundlink/internal/playback"
	"github.com/glizzus/soundlink/internal/repository"
	"github.com/google/go-cmp/cmp"
)

// memSource serves "mem:<name>" identifiers from in-memory frame lists.
// Frame i carries the single byte i.
type memSource struct {
	tracks  map[string]int
	readErr error
	block   bool
}

func (s *memSource) Name() string { return "mem" }

func (s *memSource) Match(identifier string) bool {
	return len(identifier) > 4 && identifier[:4] == "mem:"
}

func (s *memSource) Resolve(_ context.Context, identifier string) (engine.TrackInfo, error) {
	if identifier == "mem:broken" {
		return engine.TrackInfo{}, errors.New("backend unavailable")
	}
	count, ok := s.tracks[identifier]
	if !ok {
		return engine.TrackInfo{}, playback.ErrNoMatch
	}
	return engine.TrackInfo{
		Identifier: identifier,
		Title:      identifier[4:],
		Length:     time.Duration(count) * opus.FrameDuration,
		URI:        identifier,
		SourceName: s.Name(),
	}, nil
}

func (s *memSource) Open(ctx context.Context, info engine.TrackInfo) (opus.FrameSource, io.Closer, error) {
	if s.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	var buf bytes.Buffer
	for i := range s.tracks[info.Identifier] {
		if err := opus.WriteFrame(&buf, []byte{byte(i)}); err != nil {
			return nil, nil, err
		}
	}
	var r io.Reader = &buf
	if s.readErr != nil {
		r = io.MultiReader(&buf, &failingReader{err: s.readErr})
	}
	return opus.NewFrameReader(r), io.NopCloser(nil), nil
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

type recorder struct {
	engine.ListenerAdapter
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnTrackStart(_ engine.Player, track engine.Track) {
	r.add("start " + track.Info().Identifier)
}

func (r *recorder) OnTrackEnd(_ engine.Player, track engine.Track, reason engine.TrackEndReason) {
	r.add(fmt.Sprintf("end %s %s", track.Info().Identifier, reason))
}

func (r *recorder) OnTrackException(_ engine.Player, _ engine.Track, err *engine.FriendlyError) {
	r.add("exception " + err.Severity.String())
}

func (r *recorder) OnTrackStuck(_ engine.Player, _ engine.Track, threshold time.Duration) {
	r.add("stuck " + threshold.String())
}

func (r *recorder) OnPlayerPause(engine.Player)  { r.add("pause") }
func (r *recorder) OnPlayerResume(engine.Player) { r.add("resume") }

type loadResult struct {
	kind     string
	track    engine.Track
	playlist engine.Playlist
	err      *engine.FriendlyError
}

type handler chan loadResult

func (h handler) TrackLoaded(track engine.Track) { h <- loadResult{kind: "track", track: track} }
func (h handler) PlaylistLoaded(playlist engine.Playlist) {
	h <- loadResult{kind: "playlist", playlist: playlist}
}
func (h handler) NoMatches()                           { h <- loadResult{kind: "empty"} }
func (h handler) LoadFailed(err *engine.FriendlyError) { h <- loadResult{kind: "failed", err: err} }

func load(t *testing.T, m engine.Manager, identifier string) loadResult {
	t.Helper()
	h := make(handler, 2)
	m.LoadItem(identifier, h)
	select {
	case result := <-h:
		select {
		case extra := <-h:
			t.Fatalf("handler called twice: %+v", extra)
		case <-time.After(10 * time.Millisecond):
		}
		return result
	case <-time.After(2 * time.Second):
		t.Fatalf("LoadItem(%q) never completed", identifier)
	}
	return loadResult{}
}

type playlists map[string][]string

func (p playlists) FindByName(_ context.Context, name string) (*repository.Playlist, error) {
	identifiers, ok := p[name]
	if !ok {
		return nil, repository.ErrPlaylistNotFound
	}
	return &repository.Playlist{Name: name, Identifiers: identifiers}, nil
}

func newManager(source *memSource, opts ...playback.Option) *playback.Manager {
	opts = append([]playback.Option{playback.WithSource(source)}, opts...)
	return playback.NewManager(playback.Config{}, opts...)
}

func TestLoadItem(t *testing.T) {
	source := &memSource{tracks: map[string]int{"mem:a": 3, "mem:b": 5}}
	manager := newManager(source,
		playback.WithPlaylists(playlists{
			"mix":   {"mem:a", "mem:missing", "mem:b"},
			"ghost": {"mem:missing"},
		}),
		playback.WithBlocklist(eventlog.NewMemoryBlocklist("mem:b")),
	)

	tests := []struct {
		identifier string
		wantKind   string
		wantTracks []string
		wantSev    engine.Severity
	}{
		{identifier: "mem:a", wantKind: "track", wantTracks: []string{"mem:a"}},
		{identifier: "mem:nope", wantKind: "empty"},
		{identifier: "other:a", wantKind: "empty"},
		{identifier: "mem:broken", wantKind: "failed", wantSev: engine.SeveritySuspicious},
		{identifier: "mem:b", wantKind: "failed", wantSev: engine.SeverityCommon},
		{identifier: "playlist:mix", wantKind: "playlist", wantTracks: []string{"mem:a", "mem:b"}},
		{identifier: "playlist:ghost", wantKind: "empty"},
		{identifier: "playlist:unknown", wantKind: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			result := load(t, manager, tt.identifier)
			if result.kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", result.kind, tt.wantKind)
			}

			var got []string
			switch result.kind {
			case "track":
				got = []string{result.track.Info().Identifier}
			case "playlist":
				if result.playlist.SelectedTrack != -1 {
					t.Errorf("SelectedTrack = %d, want -1", result.playlist.SelectedTrack)
				}
				for _, track := range result.playlist.Tracks {
					got = append(got, track.Info().Identifier)
				}
			case "failed":
				if result.err.Severity != tt.wantSev {
					t.Errorf("severity = %s, want %s", result.err.Severity, tt.wantSev)
				}
			}
			if diff := cmp.Diff(tt.wantTracks, got); diff != "" {
				t.Errorf("tracks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func loadTrack(t *testing.T, m engine.Manager, identifier string) engine.Track {
	t.Helper()
	result := load(t, m, identifier)
	if result.kind != "track" {
		t.Fatalf("LoadItem(%q) = %s, want track", identifier, result.kind)
	}
	return result.track
}

// pull calls Provide until n frames arrived or the deadline passed.
func pull(t *testing.T, p engine.Player, n int) []engine.Frame {
	t.Helper()
	var frames []engine.Frame
	deadline := time.Now().Add(2 * time.Second)
	for len(frames) < n {
		if time.Now().After(deadline) {
			t.Fatalf("got %d frames before deadline, want %d", len(frames), n)
		}
		if frame, ok := p.Provide(); ok {
			frames = append(frames, frame)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	return frames
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPlayerPlaysToEnd(t *testing.T) {
	manager := newManager(&memSource{tracks: map[string]int{"mem:a": 4}})
	track := loadTrack(t, manager, "mem:a")
	player := manager.CreatePlayer()
	rec := &recorder{}
	player.AddListener(rec)

	player.PlayTrack(track)
	frames := pull(t, player, 4)
	for i, frame := range frames {
		if !bytes.Equal(frame.Data, []byte{byte(i)}) {
			t.Errorf("frame %d data = %v", i, frame.Data)
		}
		if want := time.Duration(i) * opus.FrameDuration; frame.Timecode != want {
			t.Errorf("frame %d timecode = %s, want %s", i, frame.Timecode, want)
		}
	}
	if got := track.Position(); got != 80*time.Millisecond {
		t.Errorf("position = %s, want 80ms", got)
	}

	waitFor(t, func() bool {
		player.Provide()
		return player.PlayingTrack() == nil
	})
	want := []string{"start mem:a", "end mem:a FINISHED"}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerSeek(t *testing.T) {
	manager := newManager(&memSource{tracks: map[string]int{"mem:a": 20}})
	track := loadTrack(t, manager, "mem:a")
	player := manager.CreatePlayer()

	player.PlayTrack(track)
	pull(t, player, 1)
	track.SetPosition(200 * time.Millisecond)

	frame := pull(t, player, 1)[0]
	if !bytes.Equal(frame.Data, []byte{10}) {
		t.Errorf("frame after seek = %v, want [10]", frame.Data)
	}
	if frame.Timecode != 200*time.Millisecond {
		t.Errorf("timecode = %s, want 200ms", frame.Timecode)
	}
}

func TestPlayerEndMarkerFiresOnce(t *testing.T) {
	manager := newManager(&memSource{tracks: map[string]int{"mem:a": 10}})
	track := loadTrack(t, manager, "mem:a")
	player := manager.CreatePlayer()
	rec := &recorder{}
	player.AddListener(rec)

	var fired int
	track.SetEndMarker(60*time.Millisecond, func() {
		fired++
		player.StopTrack()
	})
	player.PlayTrack(track)
	pull(t, player, 3)

	if fired != 1 {
		t.Fatalf("marker fired %d times, want 1", fired)
	}
	if _, ok := player.Provide(); ok {
		t.Error("Provide() returned a frame after the marker stopped the track")
	}
	want := []string{"start mem:a", "end mem:a STOPPED"}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerReadError(t *testing.T) {
	manager := newManager(&memSource{
		tracks:  map[string]int{"mem:a": 2},
		readErr: errors.New("connection reset"),
	})
	track := loadTrack(t, manager, "mem:a")
	player := manager.CreatePlayer()
	rec := &recorder{}
	player.AddListener(rec)

	player.PlayTrack(track)
	pull(t, player, 2)
	waitFor(t, func() bool {
		player.Provide()
		return player.PlayingTrack() == nil
	})

	want := []string{"start mem:a", "exception SUSPICIOUS", "end mem:a LOAD_FAILED"}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerStuck(t *testing.T) {
	mock := clock.NewMock()
	manager := playback.NewManager(
		playback.Config{StuckThreshold: 3 * time.Second},
		playback.WithClock(mock),
		playback.WithSource(&memSource{tracks: map[string]int{"mem:a": 1}, block: true}),
	)
	track := loadTrack(t, manager, "mem:a")
	player := manager.CreatePlayer()
	rec := &recorder{}
	player.AddListener(rec)

	player.PlayTrack(track)
	mock.Add(2 * time.Second)
	player.Provide()
	mock.Add(time.Second)
	player.Provide()
	player.Provide()

	want := []string{"start mem:a", "stuck 3s"}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	player.Destroy()
}

func TestPlayerReplaceAndDestroy(t *testing.T) {
	manager := newManager(&memSource{tracks: map[string]int{"mem:a": 100, "mem:b": 100}})
	a := loadTrack(t, manager, "mem:a")
	b := loadTrack(t, manager, "mem:b")
	player := manager.CreatePlayer()
	rec := &recorder{}
	player.AddListener(rec)

	player.PlayTrack(a)
	if player.StartTrack(b, true) {
		t.Error("StartTrack with noInterrupt replaced a playing track")
	}
	player.PlayTrack(b)
	player.SetPaused(true)
	if _, ok := player.Provide(); ok {
		t.Error("paused player provided a frame")
	}
	player.SetPaused(true)
	player.SetPaused(false)
	player.Destroy()
	player.Destroy()
	if player.StartTrack(a.MakeClone(), false) {
		t.Error("destroyed player started a track")
	}

	want := []string{
		"start mem:a",
		"end mem:a REPLACED",
		"start mem:b",
		"pause",
		"resume",
		"end mem:b CLEANUP",
	}
	if diff := cmp.Diff(want, rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerVolumeClamp(t *testing.T) {
	player := newManager(&memSource{}).CreatePlayer()
	for _, tt := range []struct{ set, want int }{
		{set: 100, want: 100},
		{set: -5, want: 0},
		{set: 1500, want: 1000},
		{set: 1000, want: 1000},
	} {
		player.SetVolume(tt.set)
		if got := player.Volume(); got != tt.want {
			t.Errorf("SetVolume(%d): Volume() = %d, want %d", tt.set, got, tt.want)
		}
	}
}

func TestManagerTrackCodec(t *testing.T) {
	manager := newManager(&memSource{tracks: map[string]int{"mem:a": 100}})
	track := loadTrack(t, manager, "mem:a")
	track.SetPosition(1500 * time.Millisecond)

	encoded, err := manager.EncodeTrack(track)
	if err != nil {
		t.Fatalf("EncodeTrack() returned error: %v", err)
	}
	decoded, err := manager.DecodeTrack(encoded)
	if err != nil {
		t.Fatalf("DecodeTrack() returned error: %v", err)
	}
	if diff := cmp.Diff(track.Info(), decoded.Info()); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
	if decoded.Position() != 1500*time.Millisecond {
		t.Errorf("position = %s, want 1.5s", decoded.Position())
	}

	foreign, err := engine.EncodeTrackInfo(engine.TrackInfo{Identifier: "x", SourceName: "nowhere"}, 0)
	if err != nil {
		t.Fatalf("EncodeTrackInfo() returned error: %v", err)
	}
	if _, err := manager.DecodeTrack(foreign); err == nil {
		t.Error("DecodeTrack() of a track from an unknown source should fail")
	}
}
