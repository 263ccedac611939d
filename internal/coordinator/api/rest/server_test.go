package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/coordinator/service"
	"github.com/nemanja-m/gotransform/internal/coordinator/storage"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

func newTestMux(store core.JobStore) *http.ServeMux {
	api := NewAPI(service.NewJobService(store), newMockLogger())
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return mux
}

func sampleJob(status core.JobStatus) *core.Job {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := &core.Job{
		ID:     uuid.New(),
		Name:   "clean-crawl",
		Status: status,
		Progress: core.JobProgress{
			Total:     2,
			Succeeded: 1,
			Failed:    1,
		},
		Files: []core.FileTask{
			{
				File:        pkgcore.FileReference{Path: "a.parquet", Size: 100, Index: 0},
				State:       core.FileStateSucceeded,
				Attempts:    1,
				Transitions: []core.FileState{core.FileStatePending, core.FileStateInFlight, core.FileStateSucceeded},
			},
			{
				File:        pkgcore.FileReference{Path: "b.parquet", Size: 200, Index: 1},
				State:       core.FileStateFailedTerminal,
				Attempts:    1,
				LastKind:    pkgcore.KindRead,
				LastError:   "ReadError: corrupt",
				Transitions: []core.FileState{core.FileStatePending, core.FileStateInFlight, core.FileStateFailedTerminal},
			},
		},
		Failures: []core.FailureRecord{
			{File: "b.parquet", Kind: pkgcore.KindRead, Message: "ReadError: corrupt", Attempts: 1},
		},
		Statistics: map[string]any{"files_processed": 1.0},
		StartedAt:  &started,
	}
	if status.Terminal() {
		completed := started.Add(time.Minute)
		job.CompletedAt = &completed
	}
	return job
}

func TestGetJob(t *testing.T) {
	store := storage.NewInMemoryJobStore()
	job := sampleJob(core.JobStatusCompletedWithFailures)
	_ = store.SaveJob(job)
	mux := newTestMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String(), nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp GetJobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.JobID != job.ID.String() {
		t.Errorf("Expected job ID %s, got %s", job.ID, resp.JobID)
	}
	if resp.Status != "COMPLETED_WITH_FAILURES" {
		t.Errorf("Expected status COMPLETED_WITH_FAILURES, got %s", resp.Status)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 2 {
		t.Errorf("Expected exit code 2, got %v", resp.ExitCode)
	}
	if resp.Progress.Failed != 1 || resp.Progress.Succeeded != 1 {
		t.Errorf("Unexpected progress %+v", resp.Progress)
	}
	if resp.Timestamps.DurationSeconds != 60 {
		t.Errorf("Expected duration 60s, got %v", resp.Timestamps.DurationSeconds)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].ErrorKind != "ReadError" {
		t.Errorf("Unexpected failures %+v", resp.Failures)
	}
	if resp.Links.Files != "/api/jobs/"+job.ID.String()+"/files" {
		t.Errorf("Unexpected files link %s", resp.Links.Files)
	}
}

func TestGetJobNotFound(t *testing.T) {
	mux := newTestMux(storage.NewInMemoryJobStore())

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown id", "/api/jobs/" + uuid.New().String(), http.StatusNotFound},
		{"no latest job", "/api/jobs/latest", http.StatusNotFound},
		{"malformed id", "/api/jobs/not-a-uuid", http.StatusBadRequest},
		{"files of unknown job", "/api/jobs/" + uuid.New().String() + "/files", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Code != tt.want {
				t.Errorf("Expected error code %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestGetLatestJob(t *testing.T) {
	store := storage.NewInMemoryJobStore()
	_ = store.SaveJob(sampleJob(core.JobStatusCompleted))
	latest := sampleJob(core.JobStatusRunning)
	_ = store.SaveJob(latest)
	mux := newTestMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/latest", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var resp GetJobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.JobID != latest.ID.String() {
		t.Errorf("Expected latest job %s, got %s", latest.ID, resp.JobID)
	}
	if resp.ExitCode != nil {
		t.Errorf("Expected no exit code for a running job, got %d", *resp.ExitCode)
	}
}

func TestListJobs(t *testing.T) {
	store := storage.NewInMemoryJobStore()
	for range 3 {
		_ = store.SaveJob(sampleJob(core.JobStatusCompleted))
	}
	_ = store.SaveJob(sampleJob(core.JobStatusAborted))
	mux := newTestMux(store)

	t.Run("pagination", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs?limit=3", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		var resp ListJobsResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Total != 4 {
			t.Errorf("Expected total 4, got %d", resp.Total)
		}
		if len(resp.Jobs) != 3 {
			t.Errorf("Expected 3 jobs, got %d", len(resp.Jobs))
		}
		if resp.NextOffset == nil || *resp.NextOffset != 3 {
			t.Errorf("Expected next offset 3, got %v", resp.NextOffset)
		}
		if resp.Jobs[0].Status != "ABORTED" {
			t.Errorf("Expected newest job first, got %s", resp.Jobs[0].Status)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		var resp ListJobsResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Total != 3 {
			t.Errorf("Expected 3 completed jobs, got %d", resp.Total)
		}
		if resp.NextOffset != nil {
			t.Errorf("Expected no next offset, got %d", *resp.NextOffset)
		}
	})

	t.Run("invalid parameters", func(t *testing.T) {
		for _, q := range []string{"status=PAUSED", "limit=0", "limit=x", "offset=-1"} {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs?"+q, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected status 400, got %d", q, w.Code)
			}
		}
	})
}

func TestGetJobFiles(t *testing.T) {
	store := storage.NewInMemoryJobStore()
	job := sampleJob(core.JobStatusCompletedWithFailures)
	_ = store.SaveJob(job)
	mux := newTestMux(store)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"a.parquet", "b.parquet"}},
		{"?state=failed_terminal", []string{"b.parquet"}},
		{"?state=IN_FLIGHT", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String()+"/files"+tt.query, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var resp GetFilesResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(resp.Files) != len(tt.want) {
				t.Fatalf("Expected %d files, got %d", len(tt.want), len(resp.Files))
			}
			for i, f := range resp.Files {
				if f.Path != tt.want[i] {
					t.Errorf("Expected file %s, got %s", tt.want[i], f.Path)
				}
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String()+"/files?state=done", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown state, got %d", w.Code)
	}
}

func TestGetJobFailures(t *testing.T) {
	store := storage.NewInMemoryJobStore()
	job := sampleJob(core.JobStatusCompletedWithFailures)
	_ = store.SaveJob(job)
	mux := newTestMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String()+"/failures", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var resp GetFailuresResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := FailureInfo{File: "b.parquet", ErrorKind: "ReadError", Message: "ReadError: corrupt", Attempts: 1}
	if len(resp.Failures) != 1 || resp.Failures[0] != want {
		t.Errorf("Expected failures [%+v], got %+v", want, resp.Failures)
	}
}

func TestNewServerExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_files_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Add(3)

	cfg := config.RESTConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(cfg, service.NewJobService(storage.NewInMemoryJobStore()), registry, newMockLogger())

	if srv.ReadTimeout != time.Second {
		t.Errorf("Expected read timeout from config, got %v", srv.ReadTimeout)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_files_total 3") {
		t.Errorf("Expected metrics output to contain counter, got %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected health check status 200, got %d", w.Code)
	}
}
