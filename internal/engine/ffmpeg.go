package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/types"
)

// Tail of ffmpeg diagnostics kept in error messages.
const maxDiagnosticBytes = 4 * 1024

// ProbeResult holds the source properties needed to build a plan.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
}

// FFmpeg invokes the external ffmpeg/ffprobe executables to probe sources
// and render segmentation plans. It holds no mutable state and is safe for
// concurrent use.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	outputDir   string
	timeout     time.Duration
}

// New creates an FFmpeg adapter writing segments under outputDir. timeout
// bounds a single segmentation run; zero means one hour.
func New(outputDir string, timeout time.Duration) *FFmpeg {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &FFmpeg{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		outputDir:   outputDir,
		timeout:     timeout,
	}
}

// Probe reads the duration and video dimensions of a source file.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := f.runProbe(ctx, path,
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
	)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return nil, fmt.Errorf("probe duration: unparseable %q", strings.TrimSpace(out))
	}

	out, err = f.runProbe(ctx, path,
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
	)
	if err != nil {
		return nil, fmt.Errorf("probe dimensions: %w", err)
	}
	width, height, err := parseDimensions(out)
	if err != nil {
		return nil, err
	}

	return &ProbeResult{Duration: duration, Width: width, Height: height}, nil
}

// Run renders the plan against the asset, writing numbered segment files
// into the output directory. The produced file names are discovered by the
// per-job prefix and returned sorted. Partial files left behind by a failed
// run are not cleaned up here; the caller marks the job failed and the
// cleanup scheduler reaps the debris.
func (f *FFmpeg) Run(ctx context.Context, asset types.MediaAsset, plan *planner.Plan) ([]string, error) {
	if plan.Degenerate {
		return nil, errors.New("start and end trims leave no content to segment")
	}

	prefix := SegmentPrefix(asset)
	pattern := filepath.Join(f.outputDir, prefix+"%02d.mp4")

	args := []string{
		"-i", asset.Path,
		"-vf", plan.VideoFilterChain(),
		"-af", plan.AudioFilter,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-map", "0",
		"-segment_time", strconv.Itoa(plan.SegmentTime),
		"-f", "segment",
		"-reset_timestamps", "1",
		"-y",
		pattern,
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("segmentation timed out after %s", f.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v: %s", err, diagnosticTail(output))
	}

	segments, err := f.discoverSegments(prefix)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, errors.New("ffmpeg exited cleanly but produced no segments")
	}
	return segments, nil
}

// SegmentPrefix is the stable per-job output file prefix. It embeds the
// asset id, so concurrent jobs never collide in the shared output dir.
func SegmentPrefix(asset types.MediaAsset) string {
	base := strings.TrimSuffix(filepath.Base(asset.Filename), filepath.Ext(asset.Filename))
	return fmt.Sprintf("%s_%s_part_", base, asset.ID)
}

// discoverSegments lists the output directory for files carrying the prefix.
func (f *FFmpeg) discoverSegments(prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.outputDir)
	if err != nil {
		return nil, fmt.Errorf("list output dir: %w", err)
	}

	var segments []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			segments = append(segments, e.Name())
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (f *FFmpeg) runProbe(ctx context.Context, path string, args ...string) (string, error) {
	full := append([]string{"-v", "error"}, args...)
	full = append(full, path)

	cmd := exec.CommandContext(ctx, f.ffprobePath, full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffprobe failed: %v: %s", err, diagnosticTail(output))
	}
	return string(output), nil
}

func parseDimensions(out string) (int, int, error) {
	trimmed := strings.TrimSpace(out)
	parts := strings.SplitN(trimmed, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("probe dimensions: unparseable %q", trimmed)
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("probe dimensions: bad width %q", parts[0])
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("probe dimensions: bad height %q", parts[1])
	}
	return width, height, nil
}

func diagnosticTail(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxDiagnosticBytes {
		s = "..." + s[len(s)-maxDiagnosticBytes:]
	}
	return s
}
