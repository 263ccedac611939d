package core

import (
	"errors"
	"fmt"
	"testing"

	pkgcore "github.com/nemanja-m/gotransform/pkg/core"
)

func createTestTask(index int) *FileTask {
	return NewFileTask(pkgcore.FileReference{
		Path:  fmt.Sprintf("part-%03d.parquet", index),
		Index: index,
	})
}

func TestNewFileQueue(t *testing.T) {
	q := NewFileQueue()
	if q == nil {
		t.Fatal("NewFileQueue returned nil")
	}
	if q.Len() != 0 {
		t.Errorf("expected new queue to have length 0, got %d", q.Len())
	}
}

func TestFileQueue_Push(t *testing.T) {
	tests := []struct {
		name     string
		task     *FileTask
		priority TaskPriority
		wantErr  bool
	}{
		{
			name:     "push with normal priority",
			task:     createTestTask(1),
			priority: TaskPriorityNormal,
		},
		{
			name:     "push with high priority",
			task:     createTestTask(2),
			priority: TaskPriorityHigh,
		},
		{
			name:     "push nil task returns error",
			task:     nil,
			priority: TaskPriorityNormal,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewFileQueue()
			err := q.Push(tt.task, tt.priority)
			if (err != nil) != tt.wantErr {
				t.Errorf("Push() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && q.Len() != 1 {
				t.Errorf("expected queue length 1 after push, got %d", q.Len())
			}
		})
	}
}

func TestFileQueue_Pop(t *testing.T) {
	t.Run("pop from empty queue returns error", func(t *testing.T) {
		q := NewFileQueue()
		task, err := q.Pop()
		if !errors.Is(err, ErrQueueEmpty) {
			t.Errorf("expected ErrQueueEmpty, got %v", err)
		}
		if task != nil {
			t.Errorf("expected nil task, got %v", task)
		}
	})

	t.Run("enumeration order is kept", func(t *testing.T) {
		q := NewFileQueue()
		for i := range 5 {
			_ = q.Push(createTestTask(i), TaskPriorityNormal)
		}
		for i := range 5 {
			task, err := q.Pop()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if task.File.Index != i {
				t.Errorf("expected file %d, got %d", i, task.File.Index)
			}
		}
	})

	t.Run("retries go to the back", func(t *testing.T) {
		q := NewFileQueue()
		first := createTestTask(0)
		_ = q.Push(first, TaskPriorityNormal)
		_ = q.Push(createTestTask(1), TaskPriorityNormal)

		popped, _ := q.Pop()
		_ = q.Push(popped, TaskPriorityNormal)
		_ = q.Push(createTestTask(2), TaskPriorityNormal)

		want := []int{1, 0, 2}
		for i, idx := range want {
			task, err := q.Pop()
			if err != nil {
				t.Fatalf("unexpected error at position %d: %v", i, err)
			}
			if task.File.Index != idx {
				t.Errorf("at position %d: expected file %d, got %d", i, idx, task.File.Index)
			}
		}
	})

	t.Run("returned tasks go to the front", func(t *testing.T) {
		q := NewFileQueue()
		_ = q.Push(createTestTask(1), TaskPriorityNormal)
		_ = q.Push(createTestTask(2), TaskPriorityNormal)
		_ = q.Push(createTestTask(0), TaskPriorityHigh)

		task, _ := q.Pop()
		if task.File.Index != 0 {
			t.Errorf("expected returned file 0 first, got %d", task.File.Index)
		}
	})
}

func TestFileQueue_Top(t *testing.T) {
	t.Run("top on empty queue returns error", func(t *testing.T) {
		q := NewFileQueue()
		if _, err := q.Top(); !errors.Is(err, ErrQueueEmpty) {
			t.Errorf("expected ErrQueueEmpty, got %v", err)
		}
	})

	t.Run("top does not remove", func(t *testing.T) {
		q := NewFileQueue()
		_ = q.Push(createTestTask(0), TaskPriorityNormal)
		_ = q.Push(createTestTask(1), TaskPriorityNormal)

		task, err := q.Top()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.File.Index != 0 {
			t.Errorf("expected file 0, got %d", task.File.Index)
		}
		if q.Len() != 2 {
			t.Errorf("expected queue length 2, got %d", q.Len())
		}
	})
}

func TestFileQueue_InterleavedPushPop(t *testing.T) {
	q := NewFileQueue()
	for i := range 3 {
		_ = q.Push(createTestTask(i), TaskPriorityNormal)
	}

	// A retried file goes behind files pushed before it, a requeued one in front.
	first, _ := q.Pop()
	_ = q.Push(first, TaskPriorityNormal)
	second, _ := q.Pop()
	_ = q.Push(second, TaskPriorityHigh)
	_ = q.Push(createTestTask(3), TaskPriorityNormal)

	want := []int{1, 2, 0, 3}
	for i, w := range want {
		task, err := q.Pop()
		if err != nil {
			t.Fatalf("pop %d: unexpected error: %v", i, err)
		}
		if task.File.Index != w {
			t.Errorf("pop %d: expected file %d, got %d", i, w, task.File.Index)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got length %d", q.Len())
	}
}

func TestFileQueue_Drain(t *testing.T) {
	q := NewFileQueue()
	_ = q.Push(createTestTask(0), TaskPriorityNormal)
	_ = q.Push(createTestTask(1), TaskPriorityNormal)
	_ = q.Push(createTestTask(2), TaskPriorityHigh)

	drained := q.Drain()

	want := []int{2, 0, 1}
	if len(drained) != len(want) {
		t.Fatalf("expected %d drained files, got %d", len(want), len(drained))
	}
	for i, task := range drained {
		if task.File.Index != want[i] {
			t.Errorf("drained[%d]: expected file %d, got %d", i, want[i], task.File.Index)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after drain, got length %d", q.Len())
	}
	if _, err := q.Pop(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty after drain, got %v", err)
	}
	if got := q.Drain(); len(got) != 0 {
		t.Errorf("expected nothing from a second drain, got %d files", len(got))
	}
}
