package core

import (
	"container/heap"
	"errors"
)

// TaskPriority defines dispatch urgency (lower value means dispatched first).
type TaskPriority int

const (
	// TaskPriorityHigh is used for tasks returned to the queue before they
	// reached a worker, so they keep their place at the front.
	TaskPriorityHigh TaskPriority = 0
	// TaskPriorityNormal covers first dispatches and retries, served FIFO.
	TaskPriorityNormal TaskPriority = 1
)

// ErrQueueEmpty is returned when Pop() or Top() is called on an empty queue.
var ErrQueueEmpty = errors.New("file queue is empty")

// FileQueue holds Pending files. Files with the same priority are served in
// FIFO order, so enumeration order is kept and retries go to the back.
// It is not safe for concurrent use; the coordinator goroutine owns it.
type FileQueue interface {
	Push(task *FileTask, priority TaskPriority) error
	Pop() (*FileTask, error)
	Top() (*FileTask, error)
	// Drain empties the queue and returns its files in dispatch order.
	Drain() []*FileTask
	Len() int
}

type heapFileQueue struct {
	pq       priorityQueue
	sequence uint64
}

func NewFileQueue() FileQueue {
	pq := make(priorityQueue, 0)
	heap.Init(&pq)
	return &heapFileQueue{pq: pq}
}

func (q *heapFileQueue) Push(task *FileTask, priority TaskPriority) error {
	if task == nil {
		return errors.New("cannot push nil task")
	}

	heap.Push(&q.pq, &item{
		task:     task,
		priority: priority,
		sequence: q.sequence,
	})
	q.sequence++
	return nil
}

func (q *heapFileQueue) Pop() (*FileTask, error) {
	if q.pq.Len() == 0 {
		return nil, ErrQueueEmpty
	}
	it := heap.Pop(&q.pq).(*item)
	return it.task, nil
}

func (q *heapFileQueue) Top() (*FileTask, error) {
	if q.pq.Len() == 0 {
		return nil, ErrQueueEmpty
	}
	return q.pq[0].task, nil
}

func (q *heapFileQueue) Drain() []*FileTask {
	tasks := make([]*FileTask, 0, q.pq.Len())
	for q.pq.Len() > 0 {
		tasks = append(tasks, heap.Pop(&q.pq).(*item).task)
	}
	return tasks
}

func (q *heapFileQueue) Len() int {
	return q.pq.Len()
}

type item struct {
	task     *FileTask
	priority TaskPriority
	sequence uint64 // insertion order within a priority
	index    int
}

// priorityQueue satisfies heap.Interface.
type priorityQueue []*item

func (pq priorityQueue) Len() int {
	return len(pq)
}

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].sequence < pq[j].sequence
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	it := x.(*item)
	it.index = n
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[0 : n-1]
	return it
}
