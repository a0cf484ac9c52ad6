package monitoring

import (
	"context"
	"time"

	"command-center/core/models"
	"command-center/core/repository"

	"github.com/sirupsen/logrus"
)

// Archiver keeps jobs after they leave the registry
type Archiver interface {
	SaveJob(ctx context.Context, job models.JobState) error
}

// Sweeper evicts finished jobs from the registry
type Sweeper struct {
	registry *repository.JobRegistry
	archive  Archiver
	retain   time.Duration
	interval time.Duration
	logger   *logrus.Logger
}

// NewSweeper creates a sweeper. archive may be nil.
func NewSweeper(registry *repository.JobRegistry, archive Archiver, retain, interval time.Duration, logger *logrus.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		registry: registry,
		archive:  archive,
		retain:   retain,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the sweep loop until ctx is done
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep evicts terminal jobs older than the retention window and archives them
func (s *Sweeper) Sweep(ctx context.Context) int {
	evicted := s.registry.EvictTerminated(s.retain)
	if len(evicted) == 0 {
		return 0
	}

	if s.archive != nil {
		for _, job := range evicted {
			if err := s.archive.SaveJob(ctx, job); err != nil {
				s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to archive evicted job")
			}
		}
	}
	s.logger.WithField("count", len(evicted)).Info("Evicted finished jobs from registry")
	return len(evicted)
}
