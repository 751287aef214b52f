package worker

import (
	"context"
	"fmt"
	"time"

	"linkscan/internal/logger"

	"github.com/hibiken/asynq"
)

type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.logging)
	return m
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }

// NewServer builds the asynq server that drains the scan and export queues.
func NewServer(opt asynq.RedisConnOpt, concurrency int, queues map[string]int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		Logger:      &asynqLogger{log: logger.New("Asynq")},
	})
}

func (m *Mux) logging(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		id, _ := asynq.GetTaskID(ctx)
		start := time.Now()
		m.log.LogDebugf("start %s (%s)", t.Type(), id)
		err := next.ProcessTask(ctx, t)
		if err != nil {
			m.log.LogErrorf("task %s (%s) failed after %v: %v", t.Type(), id, time.Since(start), err)
			return err
		}
		m.log.LogInfof("task %s (%s) done in %v", t.Type(), id, time.Since(start))
		return nil
	})
}

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct{ log *logger.Logger }

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(sprint(args)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(sprint(args)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(sprint(args)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(sprint(args)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(sprint(args)) }

func sprint(args []interface{}) string { return fmt.Sprint(args...) }
