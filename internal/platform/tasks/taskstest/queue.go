// Package taskstest provides an in-memory tasks.Queue for tests.
package taskstest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"linkscan/internal/platform/tasks"
)

type Queue struct {
	mu      sync.Mutex
	waiting map[string]tasks.Job
	order   []string

	// EnqueueErr, when set, is returned by every Enqueue call.
	EnqueueErr error
}

func New() *Queue { return &Queue{waiting: map[string]tasks.Job{}} }

func (q *Queue) Enqueue(_ context.Context, job tasks.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	if _, ok := q.waiting[job.ID()]; ok {
		return tasks.ErrAlreadyQueued
	}
	q.waiting[job.ID()] = job
	q.order = append(q.order, job.ID())
	return nil
}

func (q *Queue) Pending(_ context.Context, ref tasks.Ref) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.waiting[ref.ID()]
	return ok, nil
}

func (q *Queue) Cancel(_ context.Context, ref tasks.Ref) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remove(ref.ID())
	return nil
}

// Jobs returns the waiting jobs in enqueue order.
func (q *Queue) Jobs() []tasks.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]tasks.Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.waiting[id])
	}
	return out
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Take removes a waiting job as a worker would when starting it, and returns
// its payload encoded the way the real queue stores it.
func (q *Queue) Take(ref tasks.Ref) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.waiting[ref.ID()]
	if !ok {
		return nil, false
	}
	q.remove(ref.ID())
	b, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, false
	}
	return b, true
}

// IDs returns the waiting job ids, sorted.
func (q *Queue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := append([]string(nil), q.order...)
	sort.Strings(ids)
	return ids
}

func (q *Queue) remove(id string) {
	if _, ok := q.waiting[id]; !ok {
		return
	}
	delete(q.waiting, id)
	for i, o := range q.order {
		if o == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
