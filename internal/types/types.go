package types

// Job status constants
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Dispatch mode constants
const (
	DispatchQueued   = "QUEUED"
	DispatchFallback = "SYNCHRONOUS_FALLBACK"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceURL    = "url"
)

// Orientation describes the requested output orientation.
// OrientationUnset means "keep whatever the source has".
type Orientation string

const (
	OrientationUnset     Orientation = ""
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// Valid reports whether the orientation is one of the known values.
func (o Orientation) Valid() bool {
	switch o {
	case OrientationUnset, OrientationLandscape, OrientationPortrait:
		return true
	}
	return false
}

// SkipPair is a [Start,End) interval in seconds to exclude from the output.
type SkipPair struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TrimSpec carries the user-supplied editing parameters for one job.
// It is a value object: never mutated after job creation, a new value
// replaces it wholesale.
type TrimSpec struct {
	SegmentTime int         `json:"segment_time"`
	StartTime   float64     `json:"start_time"`
	EndTime     float64     `json:"end_time"`
	SkipPairs   []SkipPair  `json:"skip_pairs"`
	Orientation Orientation `json:"orientation,omitempty"`
}

// MediaAsset identifies an ingested source file. Immutable once the
// source file is on disk.
type MediaAsset struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Source   string  `json:"source"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}
