package interfaces

import (
	"context"
	"errors"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
)

// Query limits shared by every history read.
const (
	MinLimit     = 1
	MaxLimit     = 500
	DefaultLimit = 50
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// NewMessage is the insert-side shape of a Message; the id is assigned by the log.
type NewMessage struct {
	IngestTimestamp int64
	Topic           string
	Payload         string
	Kind            mqtmodels.Kind
	LockerID        *string
}

// MessageLog is the append-only record of every ingested message.
type MessageLog interface {
	// Append commits the message before returning. Ids are strictly
	// increasing across all appends on one log.
	Append(ctx context.Context, msg NewMessage) (int64, error)

	// QueryRecent returns newest-first, limit clamped to [MinLimit, MaxLimit].
	QueryRecent(ctx context.Context, limit int) ([]mqtmodels.Message, error)

	// QueryByLockerAndKind returns newest-first, same clamping.
	QueryByLockerAndKind(ctx context.Context, lockerID string, kind mqtmodels.Kind, limit int) ([]mqtmodels.Message, error)

	// DistinctLockerIDs lists every non-null locker id ever logged, ascending.
	DistinctLockerIDs(ctx context.Context) ([]string, error)
}

// ClampLimit bounds a caller supplied limit.
func ClampLimit(limit int) int {
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
