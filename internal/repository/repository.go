package repository

import (
	"context"
	"database/sql"
	"time"

	"stagg_bridge/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// StateRepo persists the last-known kettle snapshot. One row, overwritten on
// every save; no reading history is kept.
type StateRepo interface {
	Save(ctx context.Context, s models.KettleState) error
	Load(ctx context.Context) (models.KettleState, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.KettleEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.KettleEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
