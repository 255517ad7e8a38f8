package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vaibh/video-segmenter/internal/types"
)

// TrimRequest is the wire form of the editing parameters, shared by the
// JSON body of /url and the form fields of /upload.
type TrimRequest struct {
	SegmentTime int          `json:"segment_time"`
	StartTime   float64      `json:"start_time"`
	EndTime     float64      `json:"end_time"`
	SkipPairs   [][2]float64 `json:"skip_pairs"`
	Orientation string       `json:"orientation"`
}

// Spec converts the wire form into the internal value object.
func (r TrimRequest) Spec() types.TrimSpec {
	pairs := make([]types.SkipPair, len(r.SkipPairs))
	for i, p := range r.SkipPairs {
		pairs[i] = types.SkipPair{Start: p[0], End: p[1]}
	}
	return types.TrimSpec{
		SegmentTime: r.SegmentTime,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		SkipPairs:   pairs,
		Orientation: types.Orientation(r.Orientation),
	}
}

// trimFromForm reads the trim fields out of a multipart form. skip_pairs
// arrives as a JSON array string like "[[30,40],[90,95]]".
func trimFromForm(c *fiber.Ctx) (types.TrimSpec, error) {
	var req TrimRequest
	var err error

	if v := c.FormValue("segment_time"); v != "" {
		req.SegmentTime, err = strconv.Atoi(v)
		if err != nil {
			return types.TrimSpec{}, fmt.Errorf("segment_time: %q is not a number", v)
		}
	}
	if req.StartTime, err = formFloat(c, "start_time"); err != nil {
		return types.TrimSpec{}, err
	}
	if req.EndTime, err = formFloat(c, "end_time"); err != nil {
		return types.TrimSpec{}, err
	}

	if v := strings.TrimSpace(c.FormValue("skip_pairs")); v != "" {
		if err := json.Unmarshal([]byte(v), &req.SkipPairs); err != nil {
			return types.TrimSpec{}, fmt.Errorf("skip_pairs: expected [[start,end],...], got %q", v)
		}
	}
	req.Orientation = c.FormValue("orientation")

	return req.Spec(), nil
}

func formFloat(c *fiber.Ctx, field string) (float64, error) {
	v := c.FormValue(field)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", field, v)
	}
	return f, nil
}
