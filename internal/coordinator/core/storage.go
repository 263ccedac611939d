package core

import (
	"errors"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

// JobStore keeps the latest projection of each job.
type JobStore interface {
	SaveJob(job *Job) error
	GetJobByID(id uuid.UUID) (*Job, error)
	GetLatestJob() (*Job, error)
	GetJobs(filter JobFilter) ([]*Job, int, error)
}
