// Package worker runs segmentation jobs. The same execution state machine
// serves both dispatch paths: the queue consumer loop and the gateway's
// synchronous fallback.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vaibh/video-segmenter/internal/broker"
	"github.com/vaibh/video-segmenter/internal/engine"
	"github.com/vaibh/video-segmenter/internal/notify"
	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/store"
	"github.com/vaibh/video-segmenter/internal/types"
)

// Engine renders segmentation plans.
type Engine interface {
	Probe(ctx context.Context, path string) (*engine.ProbeResult, error)
	Run(ctx context.Context, asset types.MediaAsset, plan *planner.Plan) ([]string, error)
}

// Repository persists produced segments.
type Repository interface {
	SaveSegment(assetID, fileName, location string) error
}

// Archiver copies segments to remote archival storage. Optional.
type Archiver interface {
	UploadSegments(assetID string, segmentPaths []string) ([]string, error)
}

// SegmentLocator maps a produced segment file name to its on-disk location.
type SegmentLocator interface {
	SegmentPath(fileName string) string
}

// Executor drives a job from PENDING to a terminal state. Failures are
// captured into the job record in the status store; Execute itself never
// propagates them.
type Executor struct {
	store      *store.Store
	engine     Engine
	repo       Repository
	locator    SegmentLocator
	archiver   Archiver
	dispatcher *notify.Dispatcher

	fallback chan struct{} // bounds concurrent synchronous-fallback runs
}

// NewExecutor wires the executor. archiver may be nil. maxFallback bounds
// how many synchronous-fallback executions run at once; submissions past
// the bound wait for a slot.
func NewExecutor(
	st *store.Store,
	eng Engine,
	repo Repository,
	locator SegmentLocator,
	archiver Archiver,
	dispatcher *notify.Dispatcher,
	maxFallback int,
) *Executor {
	if maxFallback <= 0 {
		maxFallback = 2
	}
	return &Executor{
		store:      st,
		engine:     eng,
		repo:       repo,
		locator:    locator,
		archiver:   archiver,
		dispatcher: dispatcher,
		fallback:   make(chan struct{}, maxFallback),
	}
}

// Execute runs the state machine for a job already registered in the
// store. Callers observe the outcome only through the store.
func (e *Executor) Execute(ctx context.Context, jobID string) {
	job, err := e.store.Get(jobID)
	if err != nil {
		log.Printf("Executor: job %s vanished before execution: %v", jobID, err)
		return
	}

	if err := e.store.Update(jobID, func(j *store.Job) {
		j.Status = types.StatusProcessing
	}); err != nil {
		log.Printf("Executor: job %s not runnable: %v", jobID, err)
		return
	}

	plan := job.Plan
	if plan == nil {
		// Queued path: the payload carries only the trim spec, so probe
		// the source and recompute the plan here.
		plan, err = e.rebuildPlan(ctx, jobID, job)
		if err != nil {
			e.fail(ctx, jobID, err.Error())
			return
		}
	}

	segments, err := e.engine.Run(ctx, job.Asset, plan)
	if err != nil {
		e.fail(ctx, jobID, fmt.Sprintf("segmentation failed: %v", err))
		return
	}

	for _, name := range segments {
		if err := e.repo.SaveSegment(job.Asset.ID, name, e.locator.SegmentPath(name)); err != nil {
			// Segments exist on disk but provenance is incomplete, so the
			// job is failed rather than silently half-recorded.
			e.fail(ctx, jobID, fmt.Sprintf("failed to record segment %s: %v", name, err))
			return
		}
	}

	if e.archiver != nil {
		paths := make([]string, len(segments))
		for i, name := range segments {
			paths[i] = e.locator.SegmentPath(name)
		}
		if _, err := e.archiver.UploadSegments(job.Asset.ID, paths); err != nil {
			log.Printf("Executor: archival upload for job %s failed (job still completes): %v", jobID, err)
		}
	}

	if err := e.store.Update(jobID, func(j *store.Job) {
		j.Status = types.StatusCompleted
		j.Segments = segments
	}); err != nil {
		log.Printf("Executor: could not complete job %s: %v", jobID, err)
		return
	}

	log.Printf("Job %s completed with %d segments", jobID, len(segments))
	e.dispatcher.Notify(ctx, notify.Event{
		JobID:       jobID,
		RecipientID: job.RecipientID,
		Message:     fmt.Sprintf("Your video is ready: %d segment(s) produced.", len(segments)),
	})
}

// ExecuteFallback runs Execute synchronously within a bounded pool. It
// blocks until a slot frees up, so broker outages cannot fan out into
// unbounded concurrent ffmpeg runs.
func (e *Executor) ExecuteFallback(ctx context.Context, jobID string) {
	select {
	case e.fallback <- struct{}{}:
	case <-ctx.Done():
		e.fail(ctx, jobID, "cancelled while waiting for a fallback slot")
		return
	}
	defer func() { <-e.fallback }()

	e.Execute(ctx, jobID)
}

// RunLoop is the queue consumer: it blocks on the broker with a timeout,
// executes each job, and mirrors the terminal state back to the broker so
// remote polls see it. Returns when ctx is cancelled.
func (e *Executor) RunLoop(ctx context.Context, b *broker.Broker, pollTimeout time.Duration) {
	log.Printf("Worker loop started (poll timeout %s)", pollTimeout)
	for {
		if ctx.Err() != nil {
			log.Println("Worker loop stopping")
			return
		}

		payload, err := b.Dequeue(ctx, pollTimeout)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if err != nil {
			if errors.Is(err, broker.ErrBadPayload) {
				log.Printf("Worker: dropping undecodable message: %v", err)
				continue
			}
			log.Printf("Worker: dequeue failed, retrying shortly: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if payload == nil {
			continue // idle timeout, poll again
		}

		e.runQueued(ctx, b, payload)
	}
}

func (e *Executor) runQueued(ctx context.Context, b *broker.Broker, p *broker.Payload) {
	job := store.Job{
		ID: p.JobID,
		Asset: types.MediaAsset{
			ID:       p.AssetID,
			Filename: p.Filename,
			Path:     p.MediaPath,
			Source:   p.Source,
		},
		Trim:         p.Trim,
		Status:       types.StatusPending,
		DispatchMode: types.DispatchQueued,
		RecipientID:  p.RecipientID,
	}
	e.store.Put(job)

	if err := b.SetStatus(ctx, p.JobID, types.StatusProcessing); err != nil {
		log.Printf("Worker: could not publish PROCESSING for %s: %v", p.JobID, err)
	}

	e.Execute(ctx, p.JobID)

	final, err := e.store.Get(p.JobID)
	if err != nil {
		return
	}
	if err := b.SetResult(ctx, p.JobID, final.Status, final.Segments, final.Error); err != nil {
		log.Printf("Worker: could not publish result for %s: %v", p.JobID, err)
	}
}

// rebuildPlan probes the source and recomputes the deterministic plan for
// a job that arrived over the queue.
func (e *Executor) rebuildPlan(ctx context.Context, jobID string, job store.Job) (*planner.Plan, error) {
	probe, err := e.engine.Probe(ctx, job.Asset.Path)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %v", err)
	}

	if err := e.store.Update(jobID, func(j *store.Job) {
		j.Asset.Duration = probe.Duration
		j.Asset.Width = probe.Width
		j.Asset.Height = probe.Height
	}); err != nil {
		return nil, err
	}

	plan, err := planner.Build(planner.Source{
		Duration: probe.Duration,
		Width:    probe.Width,
		Height:   probe.Height,
	}, job.Trim)
	if err != nil {
		return nil, fmt.Errorf("plan rebuild failed: %v", err)
	}
	return plan, nil
}

func (e *Executor) fail(ctx context.Context, jobID, msg string) {
	if err := e.store.Update(jobID, func(j *store.Job) {
		j.Status = types.StatusFailed
		j.Error = msg
	}); err != nil {
		log.Printf("Executor: could not fail job %s: %v", jobID, err)
		return
	}
	log.Printf("Job %s failed: %s", jobID, msg)

	job, err := e.store.Get(jobID)
	if err != nil {
		return
	}
	e.dispatcher.Notify(ctx, notify.Event{
		JobID:       jobID,
		RecipientID: job.RecipientID,
		Message:     fmt.Sprintf("Video processing failed: %s", msg),
	})
}
