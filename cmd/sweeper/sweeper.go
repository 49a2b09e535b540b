package main

import (
	"context"
	"time"

	"backend-quranicare/internal/config"
	"backend-quranicare/internal/db"
	"backend-quranicare/internal/logging"
	"backend-quranicare/internal/stream"
	"backend-quranicare/internal/tracking"

	"go.uber.org/zap"
)

type staleAbandoner interface {
	AbandonStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type sweepDeps struct {
	loadConfig  func() config.Config
	newLogger   func(config.Config) (*zap.Logger, error)
	openTracker func(config.Config, *zap.Logger) (staleAbandoner, func(), error)
}

func defaultDeps() sweepDeps {
	return sweepDeps{
		loadConfig:  config.Load,
		newLogger:   logging.New,
		openTracker: openTracker,
	}
}

// openTracker connects to postgres and, when configured, redis so that
// abandoned events still reach clients connected to the API instances.
func openTracker(cfg config.Config, log *zap.Logger) (staleAbandoner, func(), error) {
	pg, err := db.ConnectPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}
	rdb := db.ConnectRedis(cfg)

	svc := tracking.NewService(pg, nil, stream.NewPublisher(rdb, log), cfg.CounterRetryAttempts, log)
	cleanup := func() {
		pg.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return svc, cleanup, nil
}

type sweeper struct {
	sessions   staleAbandoner
	staleAfter time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// sweepOnce abandons every open session idle for longer than staleAfter.
func (s *sweeper) sweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.sessions.AbandonStale(ctx, cutoff)
	if err != nil {
		s.log.Error("stale session sweep failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return n, err
	}
	s.log.Info("stale session sweep finished", zap.Time("cutoff", cutoff), zap.Int64("abandoned", n))
	return n, nil
}
