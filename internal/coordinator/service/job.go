package service

import (
	"github.com/google/uuid"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
)

type jobService struct {
	jobStore core.JobStore
}

// NewJobService answers status queries from the projections the
// orchestrator publishes to jobStore.
func NewJobService(jobStore core.JobStore) core.JobService {
	return &jobService{jobStore: jobStore}
}

func (s *jobService) GetJob(id uuid.UUID) (*core.Job, error) {
	return s.jobStore.GetJobByID(id)
}

func (s *jobService) GetLatestJob() (*core.Job, error) {
	return s.jobStore.GetLatestJob()
}

func (s *jobService) GetJobs(filter core.JobFilter) ([]*core.Job, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.jobStore.GetJobs(filter)
}
