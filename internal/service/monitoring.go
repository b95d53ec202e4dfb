package service

import (
	"context"
	"time"

	"stagg_bridge/internal/coordinator"
	"stagg_bridge/internal/models"
	"stagg_bridge/internal/repository"
)

// MonitoringService serves state reads. Once the coordinator has completed a
// poll the live snapshot is authoritative; before that the last persisted
// snapshot is served with Connected forced off, so a restart never claims a
// connection it does not have.
type MonitoringService struct {
	coord     *coordinator.Coordinator
	stateRepo repository.StateRepo
}

func NewMonitoringService(coord *coordinator.Coordinator, stateRepo repository.StateRepo) *MonitoringService {
	return &MonitoringService{coord: coord, stateRepo: stateRepo}
}

// GetState returns the current kettle snapshot.
func (s *MonitoringService) GetState(ctx context.Context) (models.KettleState, error) {
	if s.coord.Polled() {
		return s.coord.State(), nil
	}

	persisted, err := s.stateRepo.Load(ctx)
	if err != nil {
		return models.KettleState{}, err
	}
	if persisted.UpdatedAt.IsZero() {
		// Nothing persisted yet either: serve the documented defaults.
		return models.ResetState(time.Now().UTC()), nil
	}
	persisted.Connected = false
	persisted.UpdatedAt = toUTC(persisted.UpdatedAt)
	return persisted, nil
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
