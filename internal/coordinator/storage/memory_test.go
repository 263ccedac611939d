package storage

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
)

func saveJobs(t *testing.T, store *InMemoryJobStore, statuses ...core.JobStatus) []*core.Job {
	t.Helper()
	jobs := make([]*core.Job, len(statuses))
	for i, status := range statuses {
		jobs[i] = &core.Job{ID: uuid.New(), Name: string(status), Status: status}
		if err := store.SaveJob(jobs[i]); err != nil {
			t.Fatalf("SaveJob() error = %v", err)
		}
	}
	return jobs
}

func TestGetJobByID(t *testing.T) {
	store := NewInMemoryJobStore()
	jobs := saveJobs(t, store, core.JobStatusRunning)

	got, err := store.GetJobByID(jobs[0].ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != jobs[0] {
		t.Errorf("Expected job %v, got %v", jobs[0].ID, got.ID)
	}

	_, err = store.GetJobByID(uuid.New())
	if !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestSaveJob_ReplacesSnapshot(t *testing.T) {
	store := NewInMemoryJobStore()
	jobs := saveJobs(t, store, core.JobStatusRunning, core.JobStatusRunning)

	updated := &core.Job{ID: jobs[0].ID, Status: core.JobStatusCompleted}
	if err := store.SaveJob(updated); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	got, _ := store.GetJobByID(jobs[0].ID)
	if got.Status != core.JobStatusCompleted {
		t.Errorf("Expected COMPLETED status, got %s", got.Status)
	}

	latest, _ := store.GetLatestJob()
	if latest.ID != jobs[1].ID {
		t.Errorf("Expected latest job %v, got %v", jobs[1].ID, latest.ID)
	}
}

func TestGetLatestJob_Empty(t *testing.T) {
	store := NewInMemoryJobStore()
	if _, err := store.GetLatestJob(); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestGetJobs_StatusFilter(t *testing.T) {
	store := NewInMemoryJobStore()
	saveJobs(t, store, core.JobStatusRunning, core.JobStatusCompleted, core.JobStatusAborted, core.JobStatusCompleted)

	completed := core.JobStatusCompleted
	jobs, total, err := store.GetJobs(core.JobFilter{Status: &completed, Limit: 10})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 2 {
		t.Errorf("Expected total 2, got %d", total)
	}
	for _, job := range jobs {
		if job.Status != core.JobStatusCompleted {
			t.Errorf("Expected COMPLETED status, got %s", job.Status)
		}
	}
}

func TestGetJobs_Pagination(t *testing.T) {
	store := NewInMemoryJobStore()
	saved := saveJobs(t, store,
		core.JobStatusCompleted, core.JobStatusCompleted, core.JobStatusCompleted,
		core.JobStatusCompleted, core.JobStatusCompleted,
	)

	tests := []struct {
		name    string
		filter  core.JobFilter
		wantLen int
		wantIDs []uuid.UUID
	}{
		{
			name:    "no limit returns all newest first",
			filter:  core.JobFilter{},
			wantLen: 5,
			wantIDs: []uuid.UUID{saved[4].ID, saved[3].ID, saved[2].ID, saved[1].ID, saved[0].ID},
		},
		{
			name:    "first page",
			filter:  core.JobFilter{Limit: 2},
			wantLen: 2,
			wantIDs: []uuid.UUID{saved[4].ID, saved[3].ID},
		},
		{
			name:    "last partial page",
			filter:  core.JobFilter{Limit: 2, Offset: 4},
			wantLen: 1,
			wantIDs: []uuid.UUID{saved[0].ID},
		},
		{
			name:    "offset past the end",
			filter:  core.JobFilter{Limit: 2, Offset: 10},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, total, err := store.GetJobs(tt.filter)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if total != 5 {
				t.Errorf("Expected total 5, got %d", total)
			}
			if len(jobs) != tt.wantLen {
				t.Fatalf("Expected %d jobs, got %d", tt.wantLen, len(jobs))
			}
			for i, id := range tt.wantIDs {
				if jobs[i].ID != id {
					t.Errorf("position %d: expected %v, got %v", i, id, jobs[i].ID)
				}
			}
		})
	}
}
