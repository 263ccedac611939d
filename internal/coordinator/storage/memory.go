package storage

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
)

// InMemoryJobStore keeps the latest snapshot of every job seen by this
// process. Saving a job with a known ID replaces its snapshot.
type InMemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*core.Job
	order []uuid.UUID // first-save order
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs: make(map[uuid.UUID]*core.Job),
	}
}

func (s *InMemoryJobStore) SaveJob(job *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryJobStore) GetJobByID(id uuid.UUID) (*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, exists := s.jobs[id]
	if !exists {
		return nil, core.ErrJobNotFound
	}
	return job, nil
}

func (s *InMemoryJobStore) GetLatestJob() (*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, core.ErrJobNotFound
	}
	return s.jobs[s.order[len(s.order)-1]], nil
}

// GetJobs returns jobs newest first, filtered and paginated, along with the
// number of jobs matching the filter before pagination.
func (s *InMemoryJobStore) GetJobs(filter core.JobFilter) ([]*core.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*core.Job
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		matched = append(matched, job)
	}

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}
