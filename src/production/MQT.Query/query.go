// Package query is the read side over the message log and locker state.
package query

import (
	"context"
	"errors"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

// ErrLockerUnknown means the locker never reported telemetry. History
// reads never return it; an unknown locker simply has no history.
var ErrLockerUnknown = errors.New("locker has no recorded state")

type Service struct {
	log    interfaces.MessageLog
	states interfaces.LockerStateRepository
}

func NewService(log interfaces.MessageLog, states interfaces.LockerStateRepository) *Service {
	return &Service{log: log, states: states}
}

// ListLockers returns every locker id seen on any topic, ascending.
func (s *Service) ListLockers(ctx context.Context) ([]string, error) {
	ids, err := s.log.DistinctLockerIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// RecentMessages returns the newest messages across all lockers.
func (s *Service) RecentMessages(ctx context.Context, limit int) ([]mqtmodels.Message, error) {
	return s.log.QueryRecent(ctx, interfaces.ClampLimit(limit))
}

// LockerEvents returns the newest event messages of one locker.
func (s *Service) LockerEvents(ctx context.Context, lockerID string, limit int) ([]mqtmodels.Message, error) {
	return s.LockerMessages(ctx, lockerID, mqtmodels.KindEvent, limit)
}

// LockerMessages returns the newest messages of one locker and kind.
func (s *Service) LockerMessages(ctx context.Context, lockerID string, kind mqtmodels.Kind, limit int) ([]mqtmodels.Message, error) {
	return s.log.QueryByLockerAndKind(ctx, lockerID, kind, interfaces.ClampLimit(limit))
}

// LockerState returns ErrLockerUnknown rather than an empty record.
func (s *Service) LockerState(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error) {
	state, err := s.states.Get(ctx, lockerID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, ErrLockerUnknown
	}
	return state, err
}
