package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-marketsync/core"
	"github.com/robfig/cron/v3"
)

// Scheduler publishes periodic job messages. Cron specs carry a seconds
// field. An empty spec disables that entry.
type Scheduler struct {
	cron     *cron.Cron
	enqueuer queue.Enqueuer
	observer *core.Observer
}

func NewScheduler(enqueuer queue.Enqueuer, observer *core.Observer) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		enqueuer: enqueuer,
		observer: observer,
	}
}

// Register adds every configured entry of cfg.
func (s *Scheduler) Register(cfg core.ScheduleConfig) error {
	entries := []struct {
		spec  string
		build func() (*job.ExecutionMessage, error)
	}{
		{cfg.Orders, syncBuilder(core.SyncKindOrders)},
		{cfg.Products, syncBuilder(core.SyncKindProducts)},
		{cfg.Returns, syncBuilder(core.SyncKindReturns)},
		{cfg.Tokens, staticBuilder(NewRefreshTokensMessage)},
		{cfg.Queue, staticBuilder(NewProcessQueueMessage)},
	}
	for _, entry := range entries {
		if err := s.Add(entry.spec, entry.build); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) Add(spec string, build func() (*job.ExecutionMessage, error)) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: scheduler enqueuer is required")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.publish(build)
	})
	if err != nil {
		return fmt.Errorf("gojob: invalid schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running entries to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) publish(build func() (*job.ExecutionMessage, error)) {
	ctx := context.Background()
	msg, err := build()
	if err == nil {
		err = s.enqueuer.Enqueue(ctx, msg)
	}
	if err != nil {
		s.observer.Error(ctx, "schedule publish failed", map[string]any{"error": err.Error()})
		return
	}
	s.observer.Debug(ctx, "schedule published", map[string]any{"job": msg.JobID})
}

func syncBuilder(kind core.SyncKind) func() (*job.ExecutionMessage, error) {
	return func() (*job.ExecutionMessage, error) {
		return NewSyncMessage(kind, 0)
	}
}

func staticBuilder(fn func() *job.ExecutionMessage) func() (*job.ExecutionMessage, error) {
	return func() (*job.ExecutionMessage, error) {
		return fn(), nil
	}
}
