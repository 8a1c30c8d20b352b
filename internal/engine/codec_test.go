package engine_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glizzus/soundlink/internal/engine"
	"github.com/google/go-cmp/cmp"
)

func TestEncodeTrackInfoRoundTrip(t *testing.T) {
	info := engine.TrackInfo{
		Identifier: "blob:intro",
		Title:      "Intro",
		Author:     "soundlink",
		Length:     3 * time.Minute,
		URI:        "blob:intro",
		SourceName: "blob",
	}

	encoded, err := engine.EncodeTrackInfo(info, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("EncodeTrackInfo() returned error: %v", err)
	}

	got, position, err := engine.DecodeTrackInfo(encoded)
	if err != nil {
		t.Fatalf("DecodeTrackInfo() returned error: %v", err)
	}
	if diff := cmp.Diff(info, got); diff != "" {
		t.Errorf("DecodeTrackInfo() mismatch (-want +got):\n%s", diff)
	}
	if position != 1500*time.Millisecond {
		t.Errorf("position = %v, want 1.5s", position)
	}
}

func TestEncodeTrackInfoRejectsOversizedField(t *testing.T) {
	info := engine.TrackInfo{Title: strings.Repeat("a", 70000)}
	if _, err := engine.EncodeTrackInfo(info, 0); err == nil {
		t.Fatal("expected error for oversized title")
	}
}

func TestDecodeTrackInfoFailures(t *testing.T) {
	table := []struct {
		name    string
		encoded string
	}{
		{name: "not base64", encoded: "%%%"},
		{name: "empty", encoded: ""},
		{name: "wrong version", encoded: "CQ=="},
		{name: "truncated", encoded: "AQAF"},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := engine.DecodeTrackInfo(tc.encoded); err == nil {
				t.Errorf("DecodeTrackInfo(%q) expected error", tc.encoded)
			}
		})
	}
}

func TestDecodeTrackInfoVersionError(t *testing.T) {
	_, _, err := engine.DecodeTrackInfo("CQ==")
	if !errors.Is(err, engine.ErrUnsupportedTrackVersion) {
		t.Errorf("expected ErrUnsupportedTrackVersion, got %v", err)
	}
}

func TestRootCause(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := engine.NewFriendlyError("Something broke when playing the track.", engine.SeverityFault, errors.Join(base))

	root := engine.RootCause(wrapped)
	if root == nil {
		t.Fatal("RootCause() returned nil")
	}
	if engine.RootCause(nil) != nil {
		t.Error("RootCause(nil) should be nil")
	}

	plain := engine.NewFriendlyError("No cause", engine.SeverityCommon, nil)
	if engine.RootCause(plain) != plain {
		t.Error("RootCause() of an error without cause should be the error itself")
	}

	chained := engine.NewFriendlyError("outer", engine.SeveritySuspicious, base)
	if engine.RootCause(chained) != base {
		t.Errorf("RootCause() = %v, want %v", engine.RootCause(chained), base)
	}
}

func TestTrackEndReasonString(t *testing.T) {
	table := map[engine.TrackEndReason]string{
		engine.EndFinished:   "FINISHED",
		engine.EndLoadFailed: "LOAD_FAILED",
		engine.EndStopped:    "STOPPED",
		engine.EndReplaced:   "REPLACED",
		engine.EndCleanup:    "CLEANUP",
	}
	for reason, want := range table {
		if got := reason.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", reason, got, want)
		}
	}
	if !engine.EndFinished.MayStartNext() || engine.EndStopped.MayStartNext() {
		t.Error("MayStartNext() mismatch")
	}
}
