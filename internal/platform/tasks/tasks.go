package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"linkscan/internal/logger"
	"linkscan/internal/platform/redis"

	"github.com/hibiken/asynq"
)

const (
	QueueScans   = "scans"
	QueueExports = "exports"
)

// Queues is the asynq server queue weighting.
var Queues = map[string]int{QueueScans: 3, QueueExports: 1}

// ErrAlreadyQueued is returned by Enqueue when a job with the same reference
// is waiting to run.
var ErrAlreadyQueued = errors.New("job already queued")

// Ref identifies at most one outstanding job: a task type plus a key unique
// within that type.
type Ref struct {
	Type  string
	Queue string
	Key   string
}

func (r Ref) ID() string { return r.Type + ":" + r.Key }

type Job struct {
	Ref
	Payload interface{}
	Delay   time.Duration
}

// Queue is the job-scheduling primitive: schedule once, look up whether a job
// is still waiting, cancel a waiting job.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Pending(ctx context.Context, ref Ref) (bool, error)
	Cancel(ctx context.Context, ref Ref) error
}

// DefaultTimeout is how long one job may run. asynq otherwise cancels a
// job's context after 30 minutes, which a large site outlasts.
const DefaultTimeout = 24 * time.Hour

type Client struct {
	c       *asynq.Client
	insp    *asynq.Inspector
	timeout time.Duration
	log     *logger.Logger
}

// New builds a client whose jobs may run for timeout; zero means DefaultTimeout.
func New(r *redis.Service, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		c:       asynq.NewClient(r.AsynqRedisOpt()),
		insp:    asynq.NewInspector(r.AsynqRedisOpt()),
		timeout: timeout,
		log:     logger.New("Tasks"),
	}
}

func (t *Client) Close() error {
	if err := t.insp.Close(); err != nil {
		return err
	}
	return t.c.Close()
}

// Enqueue schedules the job once. Jobs are never retried: a failed run counts
// as completed.
func (t *Client) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", job.Type, err)
	}
	task := asynq.NewTask(job.Type, payload)
	opts := []asynq.Option{
		asynq.Queue(job.Queue),
		asynq.TaskID(job.ID()),
		asynq.MaxRetry(0),
		asynq.Timeout(t.timeout),
	}
	if job.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(job.Delay))
	}

	_, err = t.c.EnqueueContext(ctx, task, opts...)
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}

	// The id is taken. Waiting or running jobs block a new one; finished
	// leftovers (archived failures) are cleared so the id can be reused.
	info, err := t.insp.GetTaskInfo(job.Queue, job.ID())
	if err != nil {
		if isNotFound(err) {
			_, err = t.c.EnqueueContext(ctx, task, opts...)
			return err
		}
		return fmt.Errorf("inspect %s: %w", job.ID(), err)
	}
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		if err := t.insp.DeleteTask(job.Queue, job.ID()); err != nil && !isNotFound(err) {
			return fmt.Errorf("clear finished %s: %w", job.ID(), err)
		}
		_, err = t.c.EnqueueContext(ctx, task, opts...)
		return err
	default:
		return ErrAlreadyQueued
	}
}

// Pending reports whether the job is waiting to run. A job already picked up
// by a worker is not pending.
func (t *Client) Pending(_ context.Context, ref Ref) (bool, error) {
	info, err := t.insp.GetTaskInfo(ref.Queue, ref.ID())
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect %s: %w", ref.ID(), err)
	}
	return waiting(info.State), nil
}

// Cancel removes a waiting job. Missing or running jobs are left alone.
func (t *Client) Cancel(_ context.Context, ref Ref) error {
	info, err := t.insp.GetTaskInfo(ref.Queue, ref.ID())
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect %s: %w", ref.ID(), err)
	}
	if !waiting(info.State) {
		t.log.LogDebugf("not cancelling %s in state %s", ref.ID(), info.State)
		return nil
	}
	if err := t.insp.DeleteTask(ref.Queue, ref.ID()); err != nil && !isNotFound(err) {
		return fmt.Errorf("cancel %s: %w", ref.ID(), err)
	}
	return nil
}

func waiting(s asynq.TaskState) bool {
	switch s {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return true
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound)
}
