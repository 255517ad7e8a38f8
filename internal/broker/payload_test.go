package broker

import (
	"errors"
	"testing"

	"github.com/vaibh/video-segmenter/internal/types"
)

func TestDecodePayload_RejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"empty object", "{}"},
		{"missing asset id", `{"job_id":"j1","media_path":"/tmp/v.mp4"}`},
		{"missing media path", `{"job_id":"j1","media_asset_id":"a1"}`},
		{"wrong shape", `{"job_id":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload([]byte(tt.data))
			if !errors.Is(err, ErrBadPayload) {
				t.Errorf("DecodePayload err = %v, want ErrBadPayload", err)
			}
		})
	}
}

func TestDecodePayload_RoundTrip(t *testing.T) {
	in := &Payload{
		JobID:     "j1",
		AssetID:   "a1",
		MediaPath: "/data/uploads/clip_a1.mp4",
		Filename:  "clip.mp4",
		Source:    types.SourceUpload,
		Trim: types.TrimSpec{
			SegmentTime: 60,
			StartTime:   5,
			EndTime:     5,
			SkipPairs:   []types.SkipPair{{Start: 30, End: 40}},
			Orientation: types.OrientationPortrait,
		},
		RecipientID: "chat-77",
	}

	data, err := EncodePayload(in)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	out, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}

	if out.JobID != in.JobID || out.AssetID != in.AssetID || out.RecipientID != in.RecipientID {
		t.Errorf("identity fields lost: %+v", out)
	}
	if out.Trim.SegmentTime != 60 || len(out.Trim.SkipPairs) != 1 {
		t.Errorf("trim spec lost: %+v", out.Trim)
	}
	if out.Trim.Orientation != types.OrientationPortrait {
		t.Errorf("orientation = %q, want portrait", out.Trim.Orientation)
	}
}
