package automation

import (
	"container/heap"
	"sync"
)

// actionHeap implements heap.Interface over pending actions.
// Pop order is priority-then-arrival: lower priority value first, ties broken
// by submission sequence.
type actionHeap []*Action

func (pq actionHeap) Len() int { return len(pq) }

func (pq actionHeap) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq actionHeap) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *actionHeap) Push(x interface{}) {
	*pq = append(*pq, x.(*Action))
}

func (pq *actionHeap) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*pq = old[0 : n-1]
	return item
}

// pendingQueue wraps actionHeap with a mutex for safe concurrent access.
type pendingQueue struct {
	pq actionHeap
	mu sync.Mutex
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{pq: make(actionHeap, 0)}
}

func (q *pendingQueue) Push(a *Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pq, a)
}

func (q *pendingQueue) Pop() *Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pq) == 0 {
		return nil
	}
	return heap.Pop(&q.pq).(*Action)
}

func (q *pendingQueue) Peek() *Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pq) == 0 {
		return nil
	}
	return q.pq[0]
}

func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}

// Remove deletes the action with the given id from the queue, if present.
func (q *pendingQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.pq {
		if a.ID == id {
			heap.Remove(&q.pq, i)
			return true
		}
	}
	return false
}
