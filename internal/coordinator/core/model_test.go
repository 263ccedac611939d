package core

import (
	"slices"
	"testing"
	"time"

	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

func TestJob_Duration(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		startedAt   *time.Time
		completedAt *time.Time
		want        time.Duration
	}{
		{
			name: "not started returns zero",
			want: 0,
		},
		{
			name:        "completed job returns duration",
			startedAt:   ptrTime(now),
			completedAt: ptrTime(now.Add(5 * time.Minute)),
			want:        5 * time.Minute,
		},
		{
			name:        "sub-second duration",
			startedAt:   ptrTime(now),
			completedAt: ptrTime(now.Add(500 * time.Millisecond)),
			want:        500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{
				StartedAt:   tt.startedAt,
				CompletedAt: tt.completedAt,
			}

			got := job.Duration()
			if got != tt.want {
				t.Errorf("Job.Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobStatus_ExitCode(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   int
	}{
		{JobStatusCompleted, 0},
		{JobStatusCompletedWithFailures, 2},
		{JobStatusAborted, 1},
	}
	for _, tt := range tests {
		if got := tt.status.ExitCode(); got != tt.want {
			t.Errorf("%s.ExitCode() = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestFileTask_Transition(t *testing.T) {
	task := NewFileTask(pkgcore.FileReference{Path: "a.parquet"})

	path := []FileState{
		FileStateInFlight, FileStateRetrying, FileStatePending,
		FileStateInFlight, FileStateRetrying, FileStateFailedTerminal,
	}
	for _, to := range path {
		if err := task.Transition(to); err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
	}

	want := append([]FileState{FileStatePending}, path...)
	if !slices.Equal(task.Transitions, want) {
		t.Errorf("Transitions = %v, want %v", task.Transitions, want)
	}
	if !task.Terminal() {
		t.Error("expected terminal task")
	}

	if err := task.Transition(FileStatePending); err == nil {
		t.Error("expected error leaving FailedTerminal")
	}
}

func TestFileTask_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from, to FileState
	}{
		{FileStatePending, FileStateSucceeded},
		{FileStatePending, FileStateRetrying},
		{FileStateRetrying, FileStateInFlight},
		{FileStateSucceeded, FileStatePending},
	}
	for _, tt := range tests {
		task := &FileTask{State: tt.from}
		if err := task.Transition(tt.to); err == nil {
			t.Errorf("expected %s -> %s to be rejected", tt.from, tt.to)
		}
	}
}

func TestFileTask_CloneIsIndependent(t *testing.T) {
	task := NewFileTask(pkgcore.FileReference{Path: "a.parquet"})
	c := task.Clone()
	_ = task.Transition(FileStateInFlight)

	if len(c.Transitions) != 1 || c.State != FileStatePending {
		t.Errorf("clone changed with original: %+v", c)
	}
}

func TestRetryLedger(t *testing.T) {
	l := NewRetryLedger(2)

	for attempt := 1; attempt <= 3; attempt++ {
		if got := l.Charge(7); got != attempt {
			t.Fatalf("Charge() = %d, want %d", got, attempt)
		}
		wantRetry := attempt <= 2
		if l.CanRetry(7) != wantRetry {
			t.Errorf("after attempt %d CanRetry() = %v, want %v", attempt, !wantRetry, wantRetry)
		}
	}

	l.Refund(7)
	if l.Attempts(7) != 2 {
		t.Errorf("Attempts() after refund = %d, want 2", l.Attempts(7))
	}
	if l.Attempts(1) != 0 {
		t.Errorf("untouched file has %d attempts", l.Attempts(1))
	}
}

func TestJob_FilesInState(t *testing.T) {
	job := &Job{Files: []FileTask{
		{State: FileStateSucceeded},
		{State: FileStateFailedTerminal},
		{State: FileStateSucceeded},
	}}
	if got := len(job.FilesInState(FileStateSucceeded)); got != 2 {
		t.Errorf("expected 2 succeeded files, got %d", got)
	}
	if got := len(job.FilesInState("")); got != 3 {
		t.Errorf("expected all 3 files, got %d", got)
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
