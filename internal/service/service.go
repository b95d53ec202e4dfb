package service

import (
	"context"
	"time"

	"stagg_bridge/internal/coordinator"
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
	"stagg_bridge/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Kettle exposes the device control operations.
type Kettle interface {
	SetPower(ctx context.Context, on bool) error
	SetTemperature(ctx context.Context, tempC float64) error
	SetHold(ctx context.Context, minutes int) error
	SetScheduleTime(ctx context.Context, hour, minute int) error
	SetScheduleEnabled(ctx context.Context, on bool) error
	SetScheduleTemperature(ctx context.Context, tempC float64) error
	Refresh(ctx context.Context) error
}

// Monitoring exposes the read-only state snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.KettleState, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.KettleEvent, error)
}

// Poller runs the background polling loop and persists each snapshot.
// Stop via context cancellation in main() for graceful shutdown.
type Poller interface {
	Run(ctx context.Context, tick time.Duration)
}

// Service aggregates all sub-services.
type Service struct {
	Kettle
	Monitoring
	EventLog
	Poller
	Authorization
}

// NewService wires the repository layer and the device coordinator into
// concrete services.
func NewService(repos *repository.Repository, coord *coordinator.Coordinator, log *logger.Logger) *Service {
	return &Service{
		Kettle:        NewKettleService(coord, repos.EventRepo, log),
		Monitoring:    NewMonitoringService(coord, repos.StateRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Poller:        NewPollerService(coord, repos.StateRepo, log),
		Authorization: NewAuthService(repos.Auth),
	}
}
