package store

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/vaibh/video-segmenter/internal/types"
)

func newTestJob(id string) Job {
	return Job{
		ID:           id,
		Status:       types.StatusPending,
		DispatchMode: types.DispatchQueued,
	}
}

func TestPutAndGet(t *testing.T) {
	s := New()
	s.Put(newTestJob("a"))

	job, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != types.StatusPending {
		t.Errorf("Status = %q, want PENDING", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	s := New()
	j := newTestJob("a")
	j.Segments = []string{"part_00.mp4"}
	s.Put(j)

	first, _ := s.Get("a")
	first.Segments[0] = "mutated"
	first.Status = types.StatusFailed

	second, _ := s.Get("a")
	if second.Segments[0] != "part_00.mp4" {
		t.Error("caller mutation leaked into the store")
	}
	if second.Status != types.StatusPending {
		t.Error("caller status change leaked into the store")
	}
}

func TestUpdate_ForwardTransitions(t *testing.T) {
	s := New()
	s.Put(newTestJob("a"))

	steps := []string{types.StatusProcessing, types.StatusCompleted}
	for _, status := range steps {
		if err := s.Update("a", func(j *Job) { j.Status = status }); err != nil {
			t.Fatalf("Update to %s: %v", status, err)
		}
	}

	job, _ := s.Get("a")
	if job.Status != types.StatusCompleted {
		t.Errorf("final status = %q, want COMPLETED", job.Status)
	}
}

func TestUpdate_RejectsBackwardTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"processing back to pending", types.StatusProcessing, types.StatusPending},
		{"completed to failed", types.StatusCompleted, types.StatusFailed},
		{"failed to completed", types.StatusFailed, types.StatusCompleted},
		{"completed to processing", types.StatusCompleted, types.StatusProcessing},
		{"failed to pending", types.StatusFailed, types.StatusPending},
		{"pending to nonsense", types.StatusPending, "LIMBO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			j := newTestJob("a")
			j.Status = tt.from
			s.Put(j)

			err := s.Update("a", func(j *Job) { j.Status = tt.to })
			var ite *InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Fatalf("Update err = %v, want InvalidTransitionError", err)
			}

			job, _ := s.Get("a")
			if job.Status != tt.from {
				t.Errorf("rejected update still changed status to %q", job.Status)
			}
		})
	}
}

func TestUpdate_SameStatusKeepsOtherFields(t *testing.T) {
	s := New()
	j := newTestJob("a")
	j.Status = types.StatusCompleted
	s.Put(j)

	if err := s.Update("a", func(j *Job) { j.Segments = []string{"s_00.mp4"} }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	job, _ := s.Get("a")
	if len(job.Segments) != 1 {
		t.Errorf("Segments = %v, want one entry", job.Segments)
	}
}

// Random interleavings of status updates must never observe a job leaving
// a terminal state.
func TestUpdate_MonotonicUnderConcurrency(t *testing.T) {
	s := New()
	s.Put(newTestJob("a"))

	statuses := []string{
		types.StatusPending,
		types.StatusProcessing,
		types.StatusCompleted,
		types.StatusFailed,
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				target := statuses[r.Intn(len(statuses))]
				s.Update("a", func(j *Job) { j.Status = target })

				job, err := s.Get("a")
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				if statusRank(job.Status) < 0 {
					t.Errorf("observed unknown status %q", job.Status)
					return
				}
			}
		}(int64(w))
	}
	wg.Wait()

	// After the dust settles, a terminal job must stay terminal.
	job, _ := s.Get("a")
	if job.Terminal() {
		if err := s.Update("a", func(j *Job) { j.Status = types.StatusPending }); err == nil {
			t.Error("terminal job accepted transition back to PENDING")
		}
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := New()
	for _, id := range []string{"first", "second", "third"} {
		s.Put(newTestJob(id))
	}

	jobs := s.List()
	if len(jobs) != 3 {
		t.Fatalf("List returned %d jobs, want 3", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].CreatedAt.After(jobs[i-1].CreatedAt) {
			t.Errorf("List not sorted newest first at index %d", i)
		}
	}
}
