// Package gateway composes validation, planning, dispatch and status
// queries behind the HTTP handlers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vaibh/video-segmenter/internal/broker"
	"github.com/vaibh/video-segmenter/internal/engine"
	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/store"
	"github.com/vaibh/video-segmenter/internal/types"
	"github.com/vaibh/video-segmenter/internal/worker"
)

// Broker is the dispatch side of the queue.
type Broker interface {
	Probe(ctx context.Context) bool
	Enqueue(ctx context.Context, p *broker.Payload) error
	Poll(ctx context.Context, jobID string) (broker.Outcome, error)
}

// Prober reads source media properties.
type Prober interface {
	Probe(ctx context.Context, path string) (*engine.ProbeResult, error)
}

// Repository persists ingested source assets.
type Repository interface {
	SaveOriginalAsset(asset types.MediaAsset) error
}

// Submission is one validated ingestion request. The asset's file is
// already on local disk; duration and dimensions are filled in here.
type Submission struct {
	Asset       types.MediaAsset
	Trim        types.TrimSpec
	RecipientID string
}

// Handle is what the submitter gets back.
type Handle struct {
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	DispatchMode string   `json:"dispatch_mode"`
	Segments     []string `json:"segments,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// StatusResult is the answer to a status query.
type StatusResult struct {
	JobID    string   `json:"job_id"`
	Status   string   `json:"status"`
	Segments []string `json:"segments"`
	Error    string   `json:"error,omitempty"`
}

// Gateway validates submissions, builds the plan, and dispatches through
// the broker with a synchronous fallback when the broker is unreachable.
type Gateway struct {
	store    *store.Store
	broker   Broker
	prober   Prober
	repo     Repository
	executor *worker.Executor
}

func New(st *store.Store, b Broker, prober Prober, repo Repository, executor *worker.Executor) *Gateway {
	return &Gateway{
		store:    st,
		broker:   b,
		prober:   prober,
		repo:     repo,
		executor: executor,
	}
}

// Submit runs the submission pipeline. Validation failures come back as
// *planner.ValidationError and nothing is enqueued or stored for them.
// A broker failure never drops the job: it degrades to an inline run and
// the returned handle carries a terminal status.
func (g *Gateway) Submit(ctx context.Context, sub Submission) (*Handle, error) {
	probe, err := g.prober.Probe(ctx, sub.Asset.Path)
	if err != nil {
		return nil, fmt.Errorf("source unreadable: %w", err)
	}
	sub.Asset.Duration = probe.Duration
	sub.Asset.Width = probe.Width
	sub.Asset.Height = probe.Height

	plan, err := planner.Build(planner.Source{
		Duration: probe.Duration,
		Width:    probe.Width,
		Height:   probe.Height,
	}, sub.Trim)
	if err != nil {
		return nil, err
	}
	if plan.Degenerate {
		return nil, &planner.ValidationError{
			Field:  "start_time/end_time",
			Reason: fmt.Sprintf("trims cover the whole %.1fs source", probe.Duration),
		}
	}

	if err := g.repo.SaveOriginalAsset(sub.Asset); err != nil {
		return nil, fmt.Errorf("could not record source: %w", err)
	}

	job := store.Job{
		ID:           sub.Asset.ID,
		Asset:        sub.Asset,
		Trim:         sub.Trim,
		Plan:         plan,
		Status:       types.StatusPending,
		DispatchMode: types.DispatchQueued,
		RecipientID:  sub.RecipientID,
	}
	g.store.Put(job)

	payload := &broker.Payload{
		JobID:       job.ID,
		AssetID:     sub.Asset.ID,
		MediaPath:   sub.Asset.Path,
		Filename:    sub.Asset.Filename,
		Source:      sub.Asset.Source,
		Trim:        sub.Trim,
		RecipientID: sub.RecipientID,
	}

	if err := g.broker.Enqueue(ctx, payload); err != nil {
		log.Printf("Gateway: enqueue for job %s failed (%v), running synchronously", job.ID, err)
		return g.runFallback(ctx, job.ID), nil
	}

	return &Handle{
		JobID:        job.ID,
		Status:       types.StatusPending,
		DispatchMode: types.DispatchQueued,
	}, nil
}

// runFallback executes the job inline on the bounded fallback pool and
// returns a handle that is already terminal.
func (g *Gateway) runFallback(ctx context.Context, jobID string) *Handle {
	if err := g.store.Update(jobID, func(j *store.Job) {
		j.DispatchMode = types.DispatchFallback
	}); err != nil {
		log.Printf("Gateway: could not mark fallback for %s: %v", jobID, err)
	}

	g.executor.ExecuteFallback(ctx, jobID)

	job, err := g.store.Get(jobID)
	if err != nil {
		return &Handle{JobID: jobID, Status: types.StatusFailed, DispatchMode: types.DispatchFallback,
			Error: "job record lost during fallback execution"}
	}
	return &Handle{
		JobID:        job.ID,
		Status:       job.Status,
		DispatchMode: job.DispatchMode,
		Segments:     job.Segments,
		Error:        job.Error,
	}
}

// Status answers a status query. The local store is authoritative for
// fallback-dispatched and terminal jobs. A queued job still in flight is
// executed by the separate worker process, which publishes its state to
// the broker hash only, so such jobs are refreshed from the broker on
// every query. Broker unavailability degrades to the last known local
// state, or to an UNKNOWN status for jobs this process never saw.
func (g *Gateway) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	if job, err := g.store.Get(jobID); err == nil {
		if !job.Terminal() && job.DispatchMode == types.DispatchQueued {
			if res, ok := g.refreshQueued(ctx, job); ok {
				return res, nil
			}
		}
		return &StatusResult{
			JobID:    job.ID,
			Status:   job.Status,
			Segments: job.Segments,
			Error:    job.Error,
		}, nil
	}

	outcome, err := g.broker.Poll(ctx, jobID)
	if errors.Is(err, broker.ErrJobUnknown) {
		return nil, store.ErrNotFound
	}
	if errors.Is(err, broker.ErrUnavailable) {
		return &StatusResult{
			JobID:  jobID,
			Status: "UNKNOWN",
			Error:  "status unavailable: broker unreachable",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		JobID:    jobID,
		Status:   outcomeStatus(outcome.State),
		Segments: outcome.Segments,
		Error:    outcome.Error,
	}, nil
}

// refreshQueued polls the broker for a queued job's current state and
// mirrors anything newer into the local store, so later queries and the
// job listing see it even while the broker is briefly unreachable.
// Returns false when the broker has nothing newer to offer.
func (g *Gateway) refreshQueued(ctx context.Context, job store.Job) (*StatusResult, bool) {
	outcome, err := g.broker.Poll(ctx, job.ID)
	if err != nil {
		return nil, false
	}

	status := outcomeStatus(outcome.State)
	if status == "UNKNOWN" || status == job.Status {
		return nil, false
	}

	if err := g.store.Update(job.ID, func(j *store.Job) {
		j.Status = status
		j.Segments = outcome.Segments
		j.Error = outcome.Error
	}); err != nil {
		log.Printf("Gateway: could not absorb broker state for %s: %v", job.ID, err)
		return nil, false
	}

	return &StatusResult{
		JobID:    job.ID,
		Status:   status,
		Segments: outcome.Segments,
		Error:    outcome.Error,
	}, true
}

// List returns snapshots of all locally known jobs.
func (g *Gateway) List() []store.Job {
	return g.store.List()
}

func outcomeStatus(state string) string {
	switch state {
	case broker.StatePending:
		return types.StatusPending
	case broker.StateProcessing:
		return types.StatusProcessing
	case broker.StateFinished:
		return types.StatusCompleted
	case broker.StateFailed:
		return types.StatusFailed
	}
	return "UNKNOWN"
}
