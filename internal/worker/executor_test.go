package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vaibh/video-segmenter/internal/engine"
	"github.com/vaibh/video-segmenter/internal/notify"
	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/store"
	"github.com/vaibh/video-segmenter/internal/types"
)

type fakeEngine struct {
	probe    *engine.ProbeResult
	probeErr error
	segments []string
	runErr   error
}

func (f *fakeEngine) Probe(ctx context.Context, path string) (*engine.ProbeResult, error) {
	return f.probe, f.probeErr
}

func (f *fakeEngine) Run(ctx context.Context, asset types.MediaAsset, plan *planner.Plan) ([]string, error) {
	return f.segments, f.runErr
}

type fakeRepo struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeRepo) SaveSegment(assetID, fileName, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, fileName)
	return nil
}

type fakeLocator struct{ dir string }

func (f fakeLocator) SegmentPath(name string) string { return filepath.Join(f.dir, name) }

type fakeDeliverer struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, recipientID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.err
}

func plannedJob(id string) store.Job {
	plan, _ := planner.Build(
		planner.Source{Duration: 120, Width: 1920, Height: 1080},
		types.TrimSpec{SegmentTime: 60},
	)
	return store.Job{
		ID:           id,
		Asset:        types.MediaAsset{ID: id, Filename: "clip.mp4", Path: "/tmp/clip.mp4", Duration: 120},
		Trim:         types.TrimSpec{SegmentTime: 60},
		Plan:         plan,
		Status:       types.StatusPending,
		DispatchMode: types.DispatchFallback,
		RecipientID:  "chat-1",
	}
}

func newExecutor(eng Engine, repo Repository, del notify.Deliverer) (*Executor, *store.Store) {
	st := store.New()
	return NewExecutor(st, eng, repo, fakeLocator{dir: "/out"}, nil, notify.NewDispatcher(del), 2), st
}

func TestExecute_Success(t *testing.T) {
	eng := &fakeEngine{segments: []string{"clip_j1_part_00.mp4", "clip_j1_part_01.mp4"}}
	repo := &fakeRepo{}
	del := &fakeDeliverer{}
	e, st := newExecutor(eng, repo, del)

	st.Put(plannedJob("j1"))
	e.Execute(context.Background(), "j1")

	job, _ := st.Get("j1")
	if job.Status != types.StatusCompleted {
		t.Fatalf("Status = %q, want COMPLETED (error=%q)", job.Status, job.Error)
	}
	if len(job.Segments) != 2 {
		t.Errorf("Segments = %v, want 2 entries", job.Segments)
	}
	if len(repo.saved) != 2 {
		t.Errorf("repo recorded %d segments, want 2", len(repo.saved))
	}
	if len(del.messages) != 1 {
		t.Errorf("got %d notifications, want 1", len(del.messages))
	}
}

func TestExecute_EngineFailure(t *testing.T) {
	eng := &fakeEngine{runErr: errors.New("exit status 1: filter parse error")}
	e, st := newExecutor(eng, &fakeRepo{}, &fakeDeliverer{})

	st.Put(plannedJob("j1"))
	e.Execute(context.Background(), "j1")

	job, _ := st.Get("j1")
	if job.Status != types.StatusFailed {
		t.Fatalf("Status = %q, want FAILED", job.Status)
	}
	if job.Error == "" {
		t.Error("Error is empty, want captured diagnostic")
	}
	if len(job.Segments) != 0 {
		t.Errorf("Segments = %v, want none", job.Segments)
	}
}

func TestExecute_PersistenceFailure(t *testing.T) {
	eng := &fakeEngine{segments: []string{"clip_j1_part_00.mp4"}}
	repo := &fakeRepo{err: errors.New("database is locked")}
	e, st := newExecutor(eng, repo, &fakeDeliverer{})

	st.Put(plannedJob("j1"))
	e.Execute(context.Background(), "j1")

	job, _ := st.Get("j1")
	if job.Status != types.StatusFailed {
		t.Fatalf("Status = %q, want FAILED", job.Status)
	}
	if job.Error == "" {
		t.Error("Error is empty, want persistence diagnostic")
	}
}

func TestExecute_NotificationFailureDoesNotFlipStatus(t *testing.T) {
	eng := &fakeEngine{segments: []string{"clip_j1_part_00.mp4"}}
	del := &fakeDeliverer{err: errors.New("chat not reachable")}
	e, st := newExecutor(eng, &fakeRepo{}, del)

	st.Put(plannedJob("j1"))
	e.Execute(context.Background(), "j1")

	job, _ := st.Get("j1")
	if job.Status != types.StatusCompleted {
		t.Errorf("Status = %q, want COMPLETED despite delivery failure", job.Status)
	}
}

func TestExecute_RebuildsPlanForQueuedJobs(t *testing.T) {
	eng := &fakeEngine{
		probe:    &engine.ProbeResult{Duration: 120, Width: 1920, Height: 1080},
		segments: []string{"clip_j1_part_00.mp4"},
	}
	e, st := newExecutor(eng, &fakeRepo{}, &fakeDeliverer{})

	job := plannedJob("j1")
	job.Plan = nil // as it arrives over the queue
	job.DispatchMode = types.DispatchQueued
	st.Put(job)

	e.Execute(context.Background(), "j1")

	got, _ := st.Get("j1")
	if got.Status != types.StatusCompleted {
		t.Fatalf("Status = %q, want COMPLETED (error=%q)", got.Status, got.Error)
	}
	if got.Asset.Duration != 120 || got.Asset.Width != 1920 {
		t.Errorf("probed asset fields not persisted: %+v", got.Asset)
	}
}

func TestExecute_ProbeFailureFailsQueuedJob(t *testing.T) {
	eng := &fakeEngine{probeErr: errors.New("no such file")}
	e, st := newExecutor(eng, &fakeRepo{}, &fakeDeliverer{})

	job := plannedJob("j1")
	job.Plan = nil
	st.Put(job)

	e.Execute(context.Background(), "j1")

	got, _ := st.Get("j1")
	if got.Status != types.StatusFailed {
		t.Errorf("Status = %q, want FAILED", got.Status)
	}
}

func TestExecuteFallback_BoundsConcurrency(t *testing.T) {
	release := make(chan struct{})
	eng := &blockingEngine{release: release, started: make(chan string, 8)}
	st := store.New()
	e := NewExecutor(st, eng, &fakeRepo{}, fakeLocator{}, nil, notify.NewDispatcher(nil), 2)

	for _, id := range []string{"a", "b", "c"} {
		st.Put(plannedJob(id))
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e.ExecuteFallback(context.Background(), id)
		}(id)
	}

	// Only two runs may start while the engine blocks.
	<-eng.started
	<-eng.started
	time.Sleep(50 * time.Millisecond)
	select {
	case id := <-eng.started:
		t.Errorf("third run %s started past the bound", id)
	default:
	}

	close(release)
	wg.Wait()
}

type blockingEngine struct {
	release chan struct{}
	started chan string
}

func (b *blockingEngine) Probe(ctx context.Context, path string) (*engine.ProbeResult, error) {
	return &engine.ProbeResult{Duration: 60}, nil
}

func (b *blockingEngine) Run(ctx context.Context, asset types.MediaAsset, plan *planner.Plan) ([]string, error) {
	b.started <- asset.ID
	<-b.release
	return []string{asset.ID + "_part_00.mp4"}, nil
}
