package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"stagg_bridge/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	kettleStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO kettle_state (id, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot=excluded.snapshot,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT snapshot, updated_at FROM kettle_state WHERE id=?
	`
)

// Save overwrites the single snapshot row (id always 1). The snapshot is
// stored as JSON so optional fields keep their absent/present distinction.
func (r *StateSQLite) Save(ctx context.Context, state models.KettleState) error {
	tsUTC := state.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}
	state.UpdatedAt = tsUTC

	blob, err := json.Marshal(state)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		kettleStateRowID,
		string(blob),
		tsUTC,
	)
	return err
}

// Load fetches the single snapshot row (id=1). A missing row yields the
// zero snapshot and no error.
func (r *StateSQLite) Load(ctx context.Context) (models.KettleState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, kettleStateRowID)

	var (
		blob      string
		updatedAt time.Time
	)
	if err := row.Scan(&blob, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.KettleState{}, nil // no snapshot yet
		}
		return models.KettleState{}, err
	}

	var s models.KettleState
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		return models.KettleState{}, err
	}
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}
