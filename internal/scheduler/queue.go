// Package scheduler implements the Scheduling Engine (§4.2): a bounded-
// concurrency dispatcher over a dependency-gated, priority-ordered task
// queue with front-of-queue retry re-insertion.
package scheduler

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/kandev/agentengine/internal/task"
)

// ErrTaskExists is returned when a task id is already queued, running, or
// present in the terminal results map (§3 invariant: an id submitted twice
// is rejected).
var ErrTaskExists = errors.New("scheduler: task already exists")

// queuedTask is one entry in the priority heap.
type queuedTask struct {
	t       task.Task
	seq     int64 // tie-break: lower sorts first within the same priority
	index   int   // heap index, maintained by container/heap
}

// taskHeap orders by priority (descending), then by seq (ascending) so that
// submission order is preserved within a priority tier and retries — given a
// seq from the negative counter — sort ahead of ordinary arrivals.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].t.Priority != h[j].t.Priority {
		return h[i].t.Priority > h[j].t.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*queuedTask)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// taskQueue is the FIFO-with-priority queue described in §4.2, keyed for O(1)
// duplicate-id detection and O(log n) insert/remove.
type taskQueue struct {
	mu         sync.Mutex
	heap       taskHeap
	byID       map[string]*queuedTask
	nextSeq    int64 // increments for ordinary arrivals
	frontSeq   int64 // decrements for front-of-queue retry re-insertion
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{byID: make(map[string]*queuedTask)}
	heap.Init(&q.heap)
	return q
}

// push enqueues an ordinary (non-retry) arrival at the back of its priority tier.
func (q *taskQueue) push(t task.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byID[t.ID]; exists {
		return ErrTaskExists
	}
	q.nextSeq++
	qt := &queuedTask{t: t, seq: q.nextSeq}
	heap.Push(&q.heap, qt)
	q.byID[t.ID] = qt
	return nil
}

// pushFront re-enqueues a retried task ahead of any ordinary arrival within
// its priority tier (§4.2 "unshift").
func (q *taskQueue) pushFront(t task.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byID[t.ID]; exists {
		return ErrTaskExists
	}
	q.frontSeq--
	qt := &queuedTask{t: t, seq: q.frontSeq}
	heap.Push(&q.heap, qt)
	q.byID[t.ID] = qt
	return nil
}

// popReady removes and returns the highest-priority task whose dependencies
// are all present in done, or ok=false if none is ready.
func (q *taskQueue) popReady(done map[string]bool) (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Scan in heap-priority order; a non-ready task is temporarily popped and
	// tracked so it can be pushed back once the scan ends.
	var parked []*queuedTask
	defer func() {
		for _, p := range parked {
			heap.Push(&q.heap, p)
			q.byID[p.t.ID] = p
		}
	}()

	for q.heap.Len() > 0 {
		qt := heap.Pop(&q.heap).(*queuedTask)
		delete(q.byID, qt.t.ID)

		if ready(qt.t, done) {
			return qt.t, true
		}
		parked = append(parked, qt)
	}
	return task.Task{}, false
}

func ready(t task.Task, done map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !done[dep] {
			return false
		}
	}
	return true
}

// remove removes a specific queued task (used by cancelTask). Returns true
// if it was present.
func (q *taskQueue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	qt, exists := q.byID[id]
	if !exists {
		return false
	}
	heap.Remove(&q.heap, qt.index)
	delete(q.byID, id)
	return true
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// clear empties the queue, returning the ids that were discarded.
func (q *taskQueue) clear() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.byID))
	for id := range q.byID {
		ids = append(ids, id)
	}
	q.heap = nil
	q.byID = make(map[string]*queuedTask)
	return ids
}
