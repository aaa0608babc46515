package implementation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

func TestSQLMessageRepository_AppendAssignsIncreasingIDs(t *testing.T) {
	repo := NewSQLMessageRepository(openTestSQLite(t), DialectSQLite)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := repo.Append(ctx, interfaces.NewMessage{
			IngestTimestamp: int64(1000 + i),
			Topic:           "locker/1/telemetry",
			Payload:         "{}",
			Kind:            mqtmodels.KindTelemetry,
			LockerID:        strPtr("1"),
		})
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestSQLMessageRepository_ConcurrentAppends(t *testing.T) {
	repo := NewSQLMessageRepository(openTestSQLite(t), DialectSQLite)
	ctx := context.Background()

	const writers, perWriter = 4, 25
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool)
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id, err := repo.Append(ctx, interfaces.NewMessage{
					IngestTimestamp: 1,
					Topic:           fmt.Sprintf("locker/%d/event", w),
					Payload:         "x",
					Kind:            mqtmodels.KindEvent,
					LockerID:        strPtr(fmt.Sprint(w)),
				})
				assert.NoError(t, err)
				mu.Lock()
				ids[id] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, ids, writers*perWriter)

	recent, err := repo.QueryRecent(ctx, interfaces.MaxLimit)
	require.NoError(t, err)
	require.Len(t, recent, writers*perWriter)
	for i := 1; i < len(recent); i++ {
		assert.Greater(t, recent[i-1].ID, recent[i].ID)
	}
}

func TestSQLMessageRepository_RoundTripsVerbatim(t *testing.T) {
	repo := NewSQLMessageRepository(openTestSQLite(t), DialectSQLite)
	ctx := context.Background()

	in := []interfaces.NewMessage{
		{IngestTimestamp: 10, Topic: "locker/7/telemetry", Payload: `{"door":"open"}`, Kind: mqtmodels.KindTelemetry, LockerID: strPtr("7")},
		{IngestTimestamp: 11, Topic: "foo", Payload: "not json {", Kind: mqtmodels.KindUnknown},
		{IngestTimestamp: 12, Topic: "locker/7/event", Payload: "", Kind: mqtmodels.KindEvent, LockerID: strPtr("7")},
	}
	ids := make([]int64, len(in))
	for i, m := range in {
		id, err := repo.Append(ctx, m)
		require.NoError(t, err)
		ids[i] = id
	}

	recent, err := repo.QueryRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	for i, got := range recent {
		want := in[len(in)-1-i]
		assert.Equal(t, ids[len(in)-1-i], got.ID)
		assert.Equal(t, want.IngestTimestamp, got.IngestTimestamp)
		assert.Equal(t, want.Topic, got.Topic)
		assert.Equal(t, want.Payload, got.Payload)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.LockerID, got.LockerID)
	}
}

func TestSQLMessageRepository_LimitClamping(t *testing.T) {
	repo := NewSQLMessageRepository(openTestSQLite(t), DialectSQLite)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, interfaces.NewMessage{IngestTimestamp: 1, Topic: "t", Payload: "p", Kind: mqtmodels.KindUnknown})
		require.NoError(t, err)
	}

	zero, err := repo.QueryRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, zero, 1)

	huge, err := repo.QueryRecent(ctx, 10000)
	require.NoError(t, err)
	assert.Len(t, huge, 3)
}

func TestSQLMessageRepository_QueryByLockerAndKind(t *testing.T) {
	repo := NewSQLMessageRepository(openTestSQLite(t), DialectSQLite)
	ctx := context.Background()

	seed := []interfaces.NewMessage{
		{IngestTimestamp: 1, Topic: "locker/7/event", Payload: "a", Kind: mqtmodels.KindEvent, LockerID: strPtr("7")},
		{IngestTimestamp: 2, Topic: "locker/7/telemetry", Payload: "b", Kind: mqtmodels.KindTelemetry, LockerID: strPtr("7")},
		{IngestTimestamp: 3, Topic: "locker/8/event", Payload: "c", Kind: mqtmodels.KindEvent, LockerID: strPtr("8")},
		{IngestTimestamp: 4, Topic: "locker/7/event", Payload: "d", Kind: mqtmodels.KindEvent, LockerID: strPtr("7")},
	}
	for _, m := range seed {
		_, err := repo.Append(ctx, m)
		require.NoError(t, err)
	}

	events, err := repo.QueryByLockerAndKind(ctx, "7", mqtmodels.KindEvent, 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "d", events[0].Payload)
	assert.Equal(t, "a", events[1].Payload)

	none, err := repo.QueryByLockerAndKind(ctx, "unknown", mqtmodels.KindEvent, 50)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLMessageRepository_DistinctLockerIDs(t *testing.T) {
	repo := NewSQLMessageRepository(openTestSQLite(t), DialectSQLite)
	ctx := context.Background()

	empty, err := repo.DistinctLockerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, empty)

	for _, id := range []*string{strPtr("b"), nil, strPtr("a"), strPtr("b"), strPtr("10")} {
		_, err := repo.Append(ctx, interfaces.NewMessage{IngestTimestamp: 1, Topic: "t", Payload: "p", Kind: mqtmodels.KindUnknown, LockerID: id})
		require.NoError(t, err)
	}

	ids, err := repo.DistinctLockerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "a", "b"}, ids)
}

func TestDialectRebind(t *testing.T) {
	q := "SELECT * FROM messages WHERE locker_id = ? AND kind = ? LIMIT ?"
	assert.Equal(t, q, DialectSQLite.rebind(q))
	assert.Equal(t, "SELECT * FROM messages WHERE locker_id = $1 AND kind = $2 LIMIT $3", DialectPostgres.rebind(q))
}
