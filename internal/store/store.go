// Package store holds the in-process job status table. It is the single
// source of truth for a job's lifecycle once a worker has picked it up.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vaibh/video-segmenter/internal/planner"
	"github.com/vaibh/video-segmenter/internal/types"
)

var (
	ErrNotFound = errors.New("job not found")
)

// InvalidTransitionError reports an attempt to move a job backwards or out
// of a terminal state.
type InvalidTransitionError struct {
	From, To string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Job is one submitted unit of work. Created by the gateway; mutated only
// through Store.Update afterwards.
type Job struct {
	ID           string           `json:"job_id"`
	Asset        types.MediaAsset `json:"asset"`
	Trim         types.TrimSpec   `json:"trim"`
	Plan         *planner.Plan    `json:"-"`
	Status       string           `json:"status"`
	DispatchMode string           `json:"dispatch_mode"`
	Error        string           `json:"error,omitempty"`
	Segments     []string         `json:"segments"`
	RecipientID  string           `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Terminal reports whether the job has reached COMPLETED or FAILED.
func (j *Job) Terminal() bool {
	return j.Status == types.StatusCompleted || j.Status == types.StatusFailed
}

type entry struct {
	mu  sync.Mutex // serializes updates to this job
	job Job
}

// Store is the process-wide job table. Reads observe a consistent snapshot
// of a job; updates to distinct ids proceed concurrently, updates to the
// same id are serialized.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

func New() *Store {
	return &Store{jobs: make(map[string]*entry)}
}

// Put registers a job. The stored record starts a fresh copy; later reads
// never alias the caller's value.
func (s *Store) Put(job Job) {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	s.jobs[job.ID] = &entry{job: cloneJob(job)}
	s.mu.Unlock()
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *Store) Get(id string) (Job, error) {
	e := s.lookup(id)
	if e == nil {
		return Job{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneJob(e.job), nil
}

// List returns snapshots of all jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, cloneJob(e.job))
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Update applies the mutator to the job under its lock. Status may only
// move forward along PENDING -> PROCESSING -> {COMPLETED, FAILED}; a
// mutation that would leave a terminal state, or step backwards, is
// discarded and reported as an InvalidTransitionError.
func (s *Store) Update(id string, mutate func(*Job)) error {
	e := s.lookup(id)
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := cloneJob(e.job)
	mutate(&next)

	if err := checkTransition(e.job.Status, next.Status); err != nil {
		return err
	}

	next.ID = e.job.ID
	next.CreatedAt = e.job.CreatedAt
	next.UpdatedAt = time.Now()
	e.job = next
	return nil
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

func statusRank(status string) int {
	switch status {
	case types.StatusPending:
		return 0
	case types.StatusProcessing:
		return 1
	case types.StatusCompleted, types.StatusFailed:
		return 2
	}
	return -1
}

func checkTransition(from, to string) error {
	if from == to {
		return nil
	}
	fromRank, toRank := statusRank(from), statusRank(to)
	if toRank < 0 || fromRank >= 2 || toRank <= fromRank {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func cloneJob(j Job) Job {
	c := j
	if j.Segments != nil {
		c.Segments = append([]string(nil), j.Segments...)
	}
	if j.Trim.SkipPairs != nil {
		c.Trim.SkipPairs = append([]types.SkipPair(nil), j.Trim.SkipPairs...)
	}
	return c
}
