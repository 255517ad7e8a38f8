package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vaibh/video-segmenter/internal/types"
)

// ErrBadPayload marks a queue message that could not be decoded into a
// Payload. It is a broker-boundary error, distinct from connectivity
// failures: a worker that sees it drops the message and keeps consuming.
var ErrBadPayload = errors.New("malformed job payload")

// Payload is the broker-serialized form of a job. It carries only the
// essential fields; the segmentation plan is deterministic and cheap, so
// the worker recomputes it from the trim spec instead of shipping the
// plan across the wire.
type Payload struct {
	JobID       string         `json:"job_id"`
	AssetID     string         `json:"media_asset_id"`
	MediaPath   string         `json:"media_path"`
	Filename    string         `json:"filename"`
	Source      string         `json:"source"`
	Trim        types.TrimSpec `json:"trim_spec"`
	RecipientID string         `json:"recipient_id,omitempty"`
}

// Validate checks the required fields after decoding.
func (p *Payload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("%w: missing job_id", ErrBadPayload)
	}
	if p.AssetID == "" {
		return fmt.Errorf("%w: missing media_asset_id", ErrBadPayload)
	}
	if p.MediaPath == "" {
		return fmt.Errorf("%w: missing media_path", ErrBadPayload)
	}
	return nil
}

// EncodePayload serializes a payload for the queue.
func EncodePayload(p *Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses and validates a queue message. Any failure is
// reported as ErrBadPayload.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
