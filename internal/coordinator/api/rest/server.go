package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nemanja-m/gotransform/internal/coordinator/core"
	"github.com/nemanja-m/gotransform/internal/shared/config"
	"github.com/nemanja-m/gotransform/internal/shared/logging"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// API serves read-only status of the jobs this coordinator has run.
type API struct {
	jobService core.JobService
	logger     logging.Logger
}

func NewAPI(jobService core.JobService, logger logging.Logger) *API {
	return &API{
		jobService: jobService,
		logger:     logger,
	}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs", a.listJobs)
	mux.HandleFunc("GET /api/jobs/{id}", a.getJob)
	mux.HandleFunc("GET /api/jobs/{id}/files", a.getJobFiles)
	mux.HandleFunc("GET /api/jobs/{id}/failures", a.getJobFailures)
}

// getJob handles GET /api/jobs/{id}. The id "latest" names the most
// recently started job.
func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.lookupJob(w, r)
	if !ok {
		return
	}
	a.respondJSON(w, http.StatusOK, ToGetJobResponse(job))
}

// listJobs handles GET /api/jobs?status=&limit=&offset=
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := core.JobFilter{Limit: defaultLimit}
	if s := query.Get("status"); s != "" {
		status := core.JobStatus(strings.ToUpper(s))
		if !isJobStatus(status) {
			a.respondError(w, http.StatusBadRequest, "invalid status", s)
			return
		}
		filter.Status = &status
	}
	if s := query.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			a.respondError(w, http.StatusBadRequest, "invalid limit", s)
			return
		}
		filter.Limit = min(l, maxLimit)
	}
	if s := query.Get("offset"); s != "" {
		o, err := strconv.Atoi(s)
		if err != nil || o < 0 {
			a.respondError(w, http.StatusBadRequest, "invalid offset", s)
			return
		}
		filter.Offset = o
	}

	jobs, total, err := a.jobService.GetJobs(filter)
	if err != nil {
		a.logger.Error("Failed to list jobs", "error", err)
		a.respondError(w, http.StatusInternalServerError, "failed to list jobs", "")
		return
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, ToJobSummary(job))
	}

	var nextOffset *int
	if end := filter.Offset + len(jobs); end < total {
		nextOffset = &end
	}

	a.respondJSON(w, http.StatusOK, ListJobsResponse{
		Jobs:       summaries,
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		NextOffset: nextOffset,
	})
}

// getJobFiles handles GET /api/jobs/{id}/files?state=
func (a *API) getJobFiles(w http.ResponseWriter, r *http.Request) {
	job, ok := a.lookupJob(w, r)
	if !ok {
		return
	}

	var state core.FileState
	if s := r.URL.Query().Get("state"); s != "" {
		state = core.FileState(strings.ToUpper(s))
		if !isFileState(state) {
			a.respondError(w, http.StatusBadRequest, "invalid state", s)
			return
		}
	}

	files := job.FilesInState(state)
	resp := GetFilesResponse{Files: make([]FileInfo, 0, len(files))}
	for i := range files {
		resp.Files = append(resp.Files, ToFileInfo(&files[i]))
	}
	a.respondJSON(w, http.StatusOK, resp)
}

// getJobFailures handles GET /api/jobs/{id}/failures
func (a *API) getJobFailures(w http.ResponseWriter, r *http.Request) {
	job, ok := a.lookupJob(w, r)
	if !ok {
		return
	}

	resp := GetFailuresResponse{Failures: make([]FailureInfo, 0, len(job.Failures))}
	for _, f := range job.Failures {
		resp.Failures = append(resp.Failures, ToFailureInfo(f))
	}
	a.respondJSON(w, http.StatusOK, resp)
}

func (a *API) lookupJob(w http.ResponseWriter, r *http.Request) (*core.Job, bool) {
	raw := r.PathValue("id")

	var (
		job *core.Job
		err error
	)
	if raw == "latest" {
		job, err = a.jobService.GetLatestJob()
	} else {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			a.respondError(w, http.StatusBadRequest, "invalid job ID", parseErr.Error())
			return nil, false
		}
		job, err = a.jobService.GetJob(id)
	}

	switch {
	case errors.Is(err, core.ErrJobNotFound):
		a.respondError(w, http.StatusNotFound, "job not found", "")
		return nil, false
	case err != nil:
		a.logger.Error("Failed to get job", "id", raw, "error", err)
		a.respondError(w, http.StatusInternalServerError, "failed to get job", "")
		return nil, false
	}
	return job, true
}

func (a *API) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("Failed to encode response", "error", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, statusCode int, error string, message string) {
	resp := ErrorResponse{
		Error:   error,
		Message: message,
		Code:    statusCode,
	}
	a.respondJSON(w, statusCode, resp)
}

func isJobStatus(s core.JobStatus) bool {
	for _, known := range core.JobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func isFileState(s core.FileState) bool {
	switch s {
	case core.FileStatePending, core.FileStateInFlight, core.FileStateRetrying,
		core.FileStateSucceeded, core.FileStateFailedTerminal:
		return true
	}
	return false
}

// NewServer builds the status server. When registry is non-nil its metrics
// are exposed on /metrics.
func NewServer(cfg config.RESTConfig, jobService core.JobService, registry *prometheus.Registry, logger logging.Logger) *http.Server {
	api := NewAPI(jobService, logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	middlewares := []func(http.Handler) http.Handler{LoggingMiddleware(logger)}
	if registry != nil {
		metrics, err := MetricsMiddleware(registry)
		if err != nil {
			logger.Warn("HTTP request metrics disabled", "error", err)
		} else {
			middlewares = append(middlewares, metrics)
		}
	}
	middlewares = append(middlewares, RecoveryMiddleware(logger))
	handler := ChainMiddleware(mux, middlewares...)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
