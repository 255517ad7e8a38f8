// Package broker wraps the Redis queue that carries jobs from the
// submission gateway to the worker loop. Callers treat a probe or enqueue
// failure as "broker currently unavailable", never as fatal: the gateway
// degrades to synchronous execution instead.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaibh/video-segmenter/internal/types"
)

// ErrUnavailable marks a connectivity failure talking to Redis.
var ErrUnavailable = errors.New("broker unavailable")

// ErrJobUnknown is returned by Poll when no record exists for the id.
var ErrJobUnknown = errors.New("no such job on broker")

// Outcome states reported by Poll.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateFinished   = "finished"
	StateFailed     = "failed"
	StateUnknown    = "unknown"
)

// Outcome is the broker-side view of a job.
type Outcome struct {
	State    string   `json:"state"`
	Segments []string `json:"segments,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Config holds the Redis connection and queue parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// Broker is the process-wide queue client. The underlying connection is
// created lazily on first use and reused afterwards; Close releases it.
type Broker struct {
	cfg Config

	mu     sync.Mutex
	client *redis.Client
}

func New(cfg Config) *Broker {
	if cfg.Queue == "" {
		cfg.Queue = "video:jobs"
	}
	return &Broker{cfg: cfg}
}

func (b *Broker) conn() *redis.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		b.client = redis.NewClient(&redis.Options{
			Addr:        b.cfg.Addr,
			Password:    b.cfg.Password,
			DB:          b.cfg.DB,
			DialTimeout: 5 * time.Second,
		})
	}
	return b.client
}

// Probe is a cheap idempotent connectivity check.
func (b *Broker) Probe(ctx context.Context) bool {
	return b.conn().Ping(ctx).Err() == nil
}

// Enqueue records the payload in a per-job hash and pushes the id onto the
// queue. Connectivity failures come back wrapped in ErrUnavailable so the
// gateway can branch to the synchronous fallback.
func (b *Broker) Enqueue(ctx context.Context, p *Payload) error {
	data, err := EncodePayload(p)
	if err != nil {
		return err
	}

	client := b.conn()
	pipe := client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(p.JobID), "data", data, "status", types.StatusPending)
	pipe.LPush(ctx, b.cfg.Queue, p.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Printf("Enqueued job %s (asset: %s)", p.JobID, p.AssetID)
	return nil
}

// Dequeue blocks up to timeout for the next job id and loads its payload.
// Returns (nil, nil) when the wait times out with an empty queue. A
// message whose payload cannot be decoded is dropped and reported as
// ErrBadPayload; the caller logs it and keeps consuming.
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration) (*Payload, error) {
	client := b.conn()

	res, err := client.BRPop(ctx, timeout, b.cfg.Queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	jobID := res[1]
	data, err := client.HGet(ctx, b.jobKey(jobID), "data").Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: queue entry %s has no payload hash", ErrBadPayload, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return DecodePayload([]byte(data))
}

// SetStatus publishes a lifecycle state for status polling.
func (b *Broker) SetStatus(ctx context.Context, jobID, status string) error {
	if err := b.conn().HSet(ctx, b.jobKey(jobID), "status", status).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetResult publishes the terminal outcome of a job.
func (b *Broker) SetResult(ctx context.Context, jobID, status string, segments []string, errMsg string) error {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	fields := map[string]interface{}{
		"status":   status,
		"segments": segJSON,
		"error":    errMsg,
	}
	if err := b.conn().HSet(ctx, b.jobKey(jobID), fields).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Poll reports the broker-side state of a job. Broker-side read errors
// other than connectivity map to StateUnknown rather than failing the
// caller; a missing record is ErrJobUnknown.
func (b *Broker) Poll(ctx context.Context, jobID string) (Outcome, error) {
	fields, err := b.conn().HGetAll(ctx, b.jobKey(jobID)).Result()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Outcome{}, ErrJobUnknown
	}

	out := Outcome{Error: fields["error"]}
	if raw := fields["segments"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &out.Segments); err != nil {
			out.State = StateUnknown
			out.Error = fmt.Sprintf("unreadable segment list: %v", err)
			return out, nil
		}
	}

	switch fields["status"] {
	case types.StatusPending:
		out.State = StatePending
	case types.StatusProcessing:
		out.State = StateProcessing
	case types.StatusCompleted:
		out.State = StateFinished
	case types.StatusFailed:
		out.State = StateFailed
	default:
		out.State = StateUnknown
	}
	return out, nil
}

// Close releases the Redis connection. The broker can be reused after
// Close; the next call reconnects.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *Broker) jobKey(jobID string) string {
	return "video:job:" + jobID
}
