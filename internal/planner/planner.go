package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vaibh/video-segmenter/internal/types"
)

// Canonical 720p box used when the requested orientation does not match
// the source. Portrait output swaps the two.
const (
	CanonicalWidth  = 1280
	CanonicalHeight = 720
)

// ValidationError reports a malformed TrimSpec. It is surfaced
// synchronously to the submitter; jobs carrying one are never enqueued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Interval is a [Start,End) exclusion window in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Source describes the probed properties of the input the plan is built for.
type Source struct {
	Duration float64
	Width    int
	Height   int
}

// Plan is the engine-ready description of one segmentation run. It is a
// deterministic function of (Source, TrimSpec) and carries no hidden state.
type Plan struct {
	SegmentTime int
	Exclusions  []Interval
	FilterExpr  string
	VideoFilter string
	AudioFilter string
	ScaleFilter string
	PadFilter   string

	// Degenerate is set when the head and tail trims leave no content
	// between them. The gateway rejects such plans at submission and the
	// engine refuses to run them.
	Degenerate bool
}

// Build turns a TrimSpec into a Plan against the probed source.
//
// Exclusion intervals are the user's skip pairs with (0, start_time) and
// (duration-end_time, duration) appended. Overlap between the appended
// head/tail windows and user pairs is tolerated: the select filter drops a
// frame when its timestamp falls inside ANY window, so a duplicate window
// changes nothing.
func Build(src Source, trim types.TrimSpec) (*Plan, error) {
	if err := Validate(src.Duration, trim); err != nil {
		return nil, err
	}

	exclusions := make([]Interval, 0, len(trim.SkipPairs)+2)
	for _, p := range trim.SkipPairs {
		exclusions = append(exclusions, Interval{Start: p.Start, End: p.End})
	}
	exclusions = append(exclusions,
		Interval{Start: 0, End: trim.StartTime},
		Interval{Start: src.Duration - trim.EndTime, End: src.Duration},
	)

	expr := filterExpr(exclusions)

	plan := &Plan{
		SegmentTime: trim.SegmentTime,
		Exclusions:  exclusions,
		FilterExpr:  expr,
		VideoFilter: fmt.Sprintf("select='not(%s)',setpts=N/FRAME_RATE/TB", expr),
		AudioFilter: fmt.Sprintf("aselect='not(%s)',asetpts=N/SR/TB", expr),
		Degenerate:  trim.StartTime+trim.EndTime >= src.Duration,
	}

	if tw, th, ok := orientationTarget(trim.Orientation, src.Width, src.Height); ok {
		plan.ScaleFilter = fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", tw, th)
		plan.PadFilter = fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", tw, th)
	}

	return plan, nil
}

// Validate checks a TrimSpec against the source duration without building
// a plan. segment_time must be positive: a zero or negative chunk length
// is rejected rather than reinterpreted as "one big segment".
func Validate(duration float64, trim types.TrimSpec) error {
	if trim.SegmentTime <= 0 {
		return &ValidationError{Field: "segment_time", Reason: "must be a positive number of seconds"}
	}
	if trim.StartTime < 0 {
		return &ValidationError{Field: "start_time", Reason: "must not be negative"}
	}
	if trim.EndTime < 0 {
		return &ValidationError{Field: "end_time", Reason: "must not be negative"}
	}
	if !trim.Orientation.Valid() {
		return &ValidationError{Field: "orientation", Reason: "must be landscape or portrait"}
	}
	for i, p := range trim.SkipPairs {
		if p.Start < 0 || p.Start >= p.End {
			return &ValidationError{
				Field:  "skip_pairs",
				Reason: fmt.Sprintf("pair %d: need 0 <= start < end", i),
			}
		}
		if p.End > duration {
			return &ValidationError{
				Field:  "skip_pairs",
				Reason: fmt.Sprintf("pair %d: end %s exceeds duration %s", i, ftoa(p.End), ftoa(duration)),
			}
		}
	}
	return nil
}

// VideoFilterChain joins the select, scale and pad filters for ffmpeg's -vf.
func (p *Plan) VideoFilterChain() string {
	filters := []string{p.VideoFilter}
	if p.ScaleFilter != "" {
		filters = append(filters, p.ScaleFilter)
	}
	if p.PadFilter != "" {
		filters = append(filters, p.PadFilter)
	}
	return strings.Join(filters, ",")
}

// filterExpr builds the OR of between(t,start,end) over all exclusions.
func filterExpr(exclusions []Interval) string {
	terms := make([]string, len(exclusions))
	for i, iv := range exclusions {
		terms[i] = fmt.Sprintf("between(t,%s,%s)", ftoa(iv.Start), ftoa(iv.End))
	}
	return strings.Join(terms, "+")
}

// orientationTarget reports the scale/pad box when the source dimensions
// disagree with the requested orientation. A request that already matches
// the source, or no request at all, needs no scaling.
func orientationTarget(o types.Orientation, width, height int) (int, int, bool) {
	switch o {
	case types.OrientationPortrait:
		if height < width {
			return CanonicalHeight, CanonicalWidth, true
		}
	case types.OrientationLandscape:
		if width < height {
			return CanonicalWidth, CanonicalHeight, true
		}
	}
	return 0, 0, false
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
