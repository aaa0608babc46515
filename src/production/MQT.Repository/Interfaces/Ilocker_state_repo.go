package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
)

type LockerStateRepository interface {
	// Upsert inserts or wholly replaces the record for state.LockerID.
	Upsert(ctx context.Context, state mqtmodels.LockerState) error

	// Get returns ErrNotFound for a locker that never reported telemetry.
	Get(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error)
}
