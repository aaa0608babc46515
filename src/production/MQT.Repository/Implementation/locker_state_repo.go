package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

type SQLLockerStateRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLLockerStateRepository(db *sql.DB, dialect Dialect) *SQLLockerStateRepository {
	return &SQLLockerStateRepository{db: db, dialect: dialect}
}

// Upsert replaces every column, including nulls, so a record never mixes
// fields from two telemetry messages.
func (r *SQLLockerStateRepository) Upsert(ctx context.Context, state mqtmodels.LockerState) error {
	query := r.dialect.rebind(`
		INSERT INTO locker_state (locker_id, ts_update, door, relay, raw_payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (locker_id) DO UPDATE SET
			ts_update   = EXCLUDED.ts_update,
			door        = EXCLUDED.door,
			relay       = EXCLUDED.relay,
			raw_payload = EXCLUDED.raw_payload
	`)

	_, err := r.db.ExecContext(ctx, query, state.LockerID, state.TsUpdate, state.Door, state.Relay, state.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to upsert locker state: %w", err)
	}
	return nil
}

func (r *SQLLockerStateRepository) Get(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error) {
	query := r.dialect.rebind(`
		SELECT locker_id, ts_update, door, relay, raw_payload
		FROM locker_state
		WHERE locker_id = ?
	`)

	var (
		state       mqtmodels.LockerState
		door, relay sql.NullString
		raw         sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, lockerID).Scan(&state.LockerID, &state.TsUpdate, &door, &relay, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}

	state.Door = nullableString(door)
	state.Relay = nullableString(relay)
	state.RawPayload = raw.String
	return &state, nil
}
