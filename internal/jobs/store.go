package jobs

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists job records.
type Store interface {
	Create(ctx context.Context, job Job) error
	UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error
	Complete(ctx context.Context, id string, result Result) error
	Fail(ctx context.Context, id, kind, message string) error
	Get(ctx context.Context, id string) (Job, error)
	// List returns jobs newest first. cursor is the ID of the last job of
	// the previous page; the returned cursor is empty on the last page.
	List(ctx context.Context, limit int, cursor string) ([]Job, string, error)
	Close() error
}

const defaultListLimit = 20

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(&job)
	job.UpdatedAt = s.now().UTC()
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id string, status Status, percent float64, message string) error {
	return s.update(id, func(j *Job) {
		j.Status, j.Percent, j.Message = status, percent, message
	})
}

func (s *MemoryStore) Complete(_ context.Context, id string, result Result) error {
	return s.update(id, func(j *Job) {
		j.Status, j.Percent, j.Message = StatusComplete, 1, "Complete"
		j.Result = &result
	})
}

func (s *MemoryStore) Fail(_ context.Context, id, kind, message string) error {
	return s.update(id, func(j *Job) {
		j.Status, j.Error, j.ErrorKind = StatusFailed, message, kind
		j.Message = "Failed: " + message
	})
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) List(_ context.Context, limit int, cursor string) ([]Job, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	all := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j)
	}
	s.mu.RUnlock()

	// ULIDs sort by creation time.
	slices.SortFunc(all, func(a, b Job) int { return strings.Compare(b.ID, a.ID) })
	if cursor != "" {
		i := slices.IndexFunc(all, func(j Job) bool { return j.ID == cursor })
		if i < 0 {
			return nil, "", fmt.Errorf("invalid cursor")
		}
		all = all[i+1:]
	}
	if len(all) <= limit {
		return all, "", nil
	}
	return all[:limit], all[limit-1].ID, nil
}

func (s *MemoryStore) Close() error { return nil }
