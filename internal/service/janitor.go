package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/nikverify/internal/artifact"
	"go.uber.org/zap"
)

const defaultJanitorInterval = time.Minute

type expiredJobPurger interface {
	PurgeExpired(ctx context.Context) int
}

// sweeper is implemented by artifact stores without native expiry.
type sweeper interface {
	Sweep() int
}

// Janitor periodically forgets finished jobs past their retention window.
type Janitor struct {
	jobs      expiredJobPurger
	artifacts artifact.Store
	logger    *zap.Logger
	interval  time.Duration
}

func NewJanitor(
	jobs expiredJobPurger,
	artifacts artifact.Store,
	interval time.Duration,
	logger *zap.Logger,
) (*Janitor, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job purger is required")
	}
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		jobs:      jobs,
		artifacts: artifacts,
		logger:    logger,
		interval:  interval,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	jobs := j.jobs.PurgeExpired(ctx)

	artifacts := 0
	if s, ok := j.artifacts.(sweeper); ok {
		artifacts = s.Sweep()
	}

	if jobs > 0 || artifacts > 0 {
		j.logger.Info("expired jobs purged",
			zap.Int("jobs", jobs),
			zap.Int("artifacts", artifacts),
		)
	}
}
