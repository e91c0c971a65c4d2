package api

import (
	"sync"
	"time"
)

// updateQueue runs each user's updates one at a time in arrival order.
// A user's worker goroutine exits once their queue is empty.
type updateQueue struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{pending: make(map[string][]func())}
}

func (q *updateQueue) push(userID string, job func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if jobs, active := q.pending[userID]; active {
		q.pending[userID] = append(jobs, job)
		return
	}

	q.pending[userID] = []func(){job}
	q.wg.Add(1)
	go q.drain(userID)
}

func (q *updateQueue) drain(userID string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		jobs := q.pending[userID]
		if len(jobs) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.pending[userID] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// active reports how many users have queued or running updates
func (q *updateQueue) active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// wait blocks until every queue drains or the timeout passes
func (q *updateQueue) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
