package mqtingestor

import (
	"context"

	"github.com/stretchr/testify/mock"
	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

type mockLog struct {
	mock.Mock
}

func (m *mockLog) Append(ctx context.Context, msg interfaces.NewMessage) (int64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLog) QueryRecent(ctx context.Context, limit int) ([]mqtmodels.Message, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]mqtmodels.Message), args.Error(1)
}

func (m *mockLog) QueryByLockerAndKind(ctx context.Context, lockerID string, kind mqtmodels.Kind, limit int) ([]mqtmodels.Message, error) {
	args := m.Called(ctx, lockerID, kind, limit)
	return args.Get(0).([]mqtmodels.Message), args.Error(1)
}

func (m *mockLog) DistinctLockerIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

type mockStates struct {
	mock.Mock
}

func (m *mockStates) Upsert(ctx context.Context, state mqtmodels.LockerState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *mockStates) Get(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error) {
	args := m.Called(ctx, lockerID)
	if s := args.Get(0); s != nil {
		return s.(*mqtmodels.LockerState), args.Error(1)
	}
	return nil, args.Error(1)
}
