package engine

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/types"
)

func TestSegmentPrefix(t *testing.T) {
	asset := types.MediaAsset{
		ID:       "3f1b2c",
		Filename: "holiday.mp4",
	}
	if got, want := SegmentPrefix(asset), "holiday_3f1b2c_part_"; got != want {
		t.Errorf("SegmentPrefix = %q, want %q", got, want)
	}
}

func TestSegmentPrefix_StripsDirectories(t *testing.T) {
	asset := types.MediaAsset{
		ID:       "abc",
		Filename: "uploads/nested/clip.mov",
	}
	if got, want := SegmentPrefix(asset), "clip_abc_part_"; got != want {
		t.Errorf("SegmentPrefix = %q, want %q", got, want)
	}
}

func TestRun_RefusesDegeneratePlan(t *testing.T) {
	f := New(t.TempDir(), time.Minute)
	_, err := f.Run(context.Background(), types.MediaAsset{ID: "x", Filename: "v.mp4"},
		&planner.Plan{Degenerate: true, SegmentTime: 30})
	if err == nil {
		t.Fatal("Run accepted a degenerate plan")
	}
}

func TestRun_TimeoutForcesFailure(t *testing.T) {
	dir := t.TempDir()
	slow := filepath.Join(dir, "slow-ffmpeg")
	if err := os.WriteFile(slow, []byte("#!/bin/sh\nsleep 5\n"), 0755); err != nil {
		t.Fatal(err)
	}

	plan, err := planner.Build(
		planner.Source{Duration: 120, Width: 1920, Height: 1080},
		types.TrimSpec{SegmentTime: 60},
	)
	if err != nil {
		t.Fatal(err)
	}

	f := New(t.TempDir(), 50*time.Millisecond)
	f.ffmpegPath = slow

	_, err = f.Run(context.Background(),
		types.MediaAsset{ID: "t1", Filename: "clip.mp4", Path: filepath.Join(dir, "clip.mp4")}, plan)
	if err == nil {
		t.Fatal("Run returned no error, want timeout")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want the timeout-specific message", err)
	}
}

func TestDiscoverSegments_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"clip_abc_part_02.mp4",
		"clip_abc_part_00.mp4",
		"clip_abc_part_01.mp4",
		"other_def_part_00.mp4", // different job
		"notes.txt",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "clip_abc_part_dir"), 0755); err != nil {
		t.Fatal(err)
	}

	f := New(dir, time.Minute)
	got, err := f.discoverSegments("clip_abc_part_")
	if err != nil {
		t.Fatalf("discoverSegments: %v", err)
	}
	want := []string{"clip_abc_part_00.mp4", "clip_abc_part_01.mp4", "clip_abc_part_02.mp4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("discoverSegments = %v, want %v", got, want)
	}
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		in      string
		width   int
		height  int
		wantErr bool
	}{
		{"1920x1080\n", 1920, 1080, false},
		{"720x1280", 720, 1280, false},
		{"garbage", 0, 0, true},
		{"", 0, 0, true},
		{"1920x", 0, 0, true},
	}
	for _, tt := range tests {
		w, h, err := parseDimensions(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDimensions(%q) = (%d,%d), want error", tt.in, w, h)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDimensions(%q): %v", tt.in, err)
			continue
		}
		if w != tt.width || h != tt.height {
			t.Errorf("parseDimensions(%q) = (%d,%d), want (%d,%d)", tt.in, w, h, tt.width, tt.height)
		}
	}
}

func TestDiagnosticTail_TruncatesLongOutput(t *testing.T) {
	long := make([]byte, maxDiagnosticBytes*2)
	for i := range long {
		long[i] = 'e'
	}
	got := diagnosticTail(long)
	if len(got) > maxDiagnosticBytes+3 {
		t.Errorf("diagnosticTail kept %d bytes, limit %d", len(got), maxDiagnosticBytes)
	}
}
