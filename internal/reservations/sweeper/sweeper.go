// Package sweeper expires change proposals nobody answered in time. Each
// expiry is a conditional transition, so any number of sweepers can run
// against the same store without double-expiring or double-notifying.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservo/internal/reservations/metrics"
	"reservo/internal/reservations/repository"
	"reservo/pkg/logger"
	"reservo/pkg/model"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultBatchSize = 100
)

// Expirer performs one expiry and reports whether this call won it.
type Expirer interface {
	Expire(ctx context.Context, p *model.ChangeProposal) (bool, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Sweeper struct {
	proposals repository.ProposalRepository
	expirer   Expirer
	clock     clockwork.Clock
	cfg       Config
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	log       *logger.Logger
}

func New(proposals repository.ProposalRepository, expirer Expirer, clock clockwork.Clock, cfg Config, m *metrics.Metrics, log *logger.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		proposals: proposals,
		expirer:   expirer,
		clock:     clock,
		cfg:       cfg,
		metrics:   m,
		tracer:    otel.Tracer("reservo/internal/reservations/sweeper"),
		log:       log.Component("sweeper"),
	}
}

// RunOnce expires up to one batch of overdue pending proposals and returns how
// many this run transitioned. Failures on single proposals do not stop the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "reservations.Sweep")
	defer span.End()

	now := s.clock.Now().UTC()
	overdue, err := s.proposals.FindExpiredPending(ctx, now, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to find overdue proposals: %w", err)
	}

	expired := 0
	var errs []error
	for _, p := range overdue {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		won, err := s.expirer.Expire(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("proposal %s: %w", p.ID, err))
			continue
		}
		if won {
			expired++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.candidates", len(overdue)),
		attribute.Int("sweep.expired", expired),
	)
	s.metrics.Sweep(expired)
	if expired > 0 {
		s.log.Info("Sweep finished", "candidates", len(overdue), "expired", expired)
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return expired, err
	}
	return expired, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("Sweeper started", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return nil
		case <-ticker.Chan():
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Sweep failed", "error", err)
			}
		}
	}
}
