package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stagg_bridge/internal/coordinator"
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
	"stagg_bridge/internal/repository"
)

// KettleService forwards control operations to the coordinator and records
// every accepted command in the event log. A failed event append never fails
// the command; the log is observability, not a ledger.
type KettleService struct {
	coord     *coordinator.Coordinator
	eventRepo repository.EventRepo
	log       *logger.Logger
}

func NewKettleService(coord *coordinator.Coordinator, eventRepo repository.EventRepo, log *logger.Logger) *KettleService {
	return &KettleService{coord: coord, eventRepo: eventRepo, log: log}
}

func (s *KettleService) SetPower(ctx context.Context, on bool) error {
	if err := s.coord.SetPower(ctx, on); err != nil {
		return err
	}
	s.recordCommand(ctx, fmt.Sprintf("set_power %v", on), map[string]any{"on": on})
	return nil
}

func (s *KettleService) SetTemperature(ctx context.Context, tempC float64) error {
	if err := s.coord.SetTemperature(ctx, tempC); err != nil {
		return err
	}
	s.recordCommand(ctx, fmt.Sprintf("set_temperature %.1fC", tempC), map[string]any{"temp_c": tempC})
	return nil
}

func (s *KettleService) SetHold(ctx context.Context, minutes int) error {
	if err := s.coord.SetHold(ctx, minutes); err != nil {
		return err
	}
	s.recordCommand(ctx, fmt.Sprintf("set_hold %dm", minutes), map[string]any{"minutes": minutes})
	return nil
}

func (s *KettleService) SetScheduleTime(ctx context.Context, hour, minute int) error {
	if err := s.coord.SetScheduleTime(ctx, hour, minute); err != nil {
		return err
	}
	s.recordCommand(ctx, fmt.Sprintf("set_schedule_time %02d:%02d", hour, minute),
		map[string]any{"hour": hour, "minute": minute})
	return nil
}

func (s *KettleService) SetScheduleEnabled(ctx context.Context, on bool) error {
	if err := s.coord.SetScheduleEnabled(ctx, on); err != nil {
		return err
	}
	s.recordCommand(ctx, fmt.Sprintf("set_schedule_enabled %v", on), map[string]any{"on": on})
	return nil
}

func (s *KettleService) SetScheduleTemperature(ctx context.Context, tempC float64) error {
	if err := s.coord.SetScheduleTemperature(ctx, tempC); err != nil {
		return err
	}
	s.recordCommand(ctx, fmt.Sprintf("set_schedule_temperature %.1fC", tempC),
		map[string]any{"temp_c": tempC})
	return nil
}

// Refresh triggers one poll outside the regular cadence.
func (s *KettleService) Refresh(ctx context.Context) error {
	return s.coord.Refresh(ctx)
}

func (s *KettleService) recordCommand(ctx context.Context, description string, meta map[string]any) {
	err := s.eventRepo.Append(ctx, models.KettleEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        models.EventCommand,
		Description: description,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Warnw("command event append failed", "description", description, "error", err)
	}
}
