package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultRunInterval = 5 * time.Minute

// Scheduler invokes the orchestrator on a fixed interval. Invocations never
// overlap: a tick arriving while a run is in flight is dropped, the next tick
// picks up whatever that run left unfinished.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *zap.Logger
	running      atomic.Bool
}

func NewScheduler(orchestrator *Orchestrator, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if orchestrator == nil {
		return nil, errors.New("scheduler: orchestrator is required")
	}
	if interval <= 0 {
		interval = defaultRunInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("previous run still in flight, skipping tick")
		return
	}
	defer s.running.Store(false)

	outcome, err := s.orchestrator.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}

	switch {
	case outcome.Disabled:
		s.logger.Debug("scheduled run skipped, pipeline disabled")
	case outcome.BreakerSkipped:
		s.logger.Info("scheduled run skipped by circuit breaker",
			zap.String("batchId", outcome.BatchID))
	case outcome.NoCandidates:
		s.logger.Info("scheduled run found no candidates")
	default:
		s.logger.Info("scheduled run finished",
			zap.String("batchId", outcome.BatchID),
			zap.String("status", outcome.Status.String()),
			zap.Int("processed", outcome.Processed),
			zap.Int("remaining", outcome.Remaining),
		)
	}
}
