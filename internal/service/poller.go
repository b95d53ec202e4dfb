package service

import (
	"context"
	"time"

	"stagg_bridge/internal/coordinator"
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/repository"
)

// PollerService drives the coordinator at the configured cadence and
// persists the snapshot after every cycle so a restart starts from the last
// known state rather than from nothing.
type PollerService struct {
	coord     *coordinator.Coordinator
	stateRepo repository.StateRepo
	log       *logger.Logger
}

func NewPollerService(coord *coordinator.Coordinator, stateRepo repository.StateRepo, log *logger.Logger) *PollerService {
	return &PollerService{coord: coord, stateRepo: stateRepo, log: log}
}

// Run ticks at the given interval until ctx is canceled. Poll failures are
// the coordinator's business (failure counting, degradation); the poller
// only persists whatever snapshot each cycle left behind.
func (s *PollerService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.coord.Refresh(ctx); err != nil {
				continue
			}
			if err := s.stateRepo.Save(ctx, s.coord.State()); err != nil {
				s.log.Warnw("snapshot persist failed", "error", err)
			}
		}
	}
}
