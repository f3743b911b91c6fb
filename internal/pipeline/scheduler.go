package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"

	"shoplake/internal/domain"
)

// Scheduler triggers pipeline runs on a cron schedule. Scheduled runs use
// bookmarks so only newly landed files are processed.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

func NewScheduler(runner *Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
}

// Start registers the schedule and starts the cron loop. An empty spec
// disables scheduling.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		s.logger.Info("scheduler disabled, no cron schedule configured")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		run, err := s.runner.Execute(context.Background(), domain.TriggerScheduled, domain.RunParams{Bookmark: true})
		if err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				s.logger.Warn("scheduled run skipped, previous run still in flight")
				return
			}
			s.logger.Error("scheduled run failed to start", "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "run", run.ID, "status", run.Status)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", spec)
	return nil
}

// Stop stops the cron loop, waiting for an in-flight trigger to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
