package implementation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

const (
	messagesCollection    = "messages"
	countersCollection    = "counters"
	lockerStateCollection = "locker_state"

	messageSequence = "messages"
)

type MongoMessageRepository struct {
	coll     *mongo.Collection
	counters *mongo.Collection

	// held across id allocation and insert so ids land in order
	mu sync.Mutex
}

func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		coll:     db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}
}

func (r *MongoMessageRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate message id: %w", err)
	}
	return counter.Seq, nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, msg interfaces.NewMessage) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.nextID(ctx)
	if err != nil {
		return 0, err
	}

	doc := mqtmodels.Message{
		ID:              id,
		IngestTimestamp: msg.IngestTimestamp,
		Topic:           msg.Topic,
		Payload:         msg.Payload,
		Kind:            msg.Kind,
		LockerID:        msg.LockerID,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	return id, nil
}

func (r *MongoMessageRepository) QueryRecent(ctx context.Context, limit int) ([]mqtmodels.Message, error) {
	return r.find(ctx, bson.M{}, limit)
}

func (r *MongoMessageRepository) QueryByLockerAndKind(ctx context.Context, lockerID string, kind mqtmodels.Kind, limit int) ([]mqtmodels.Message, error) {
	return r.find(ctx, bson.M{"locker_id": lockerID, "kind": string(kind)}, limit)
}

func (r *MongoMessageRepository) find(ctx context.Context, filter bson.M, limit int) ([]mqtmodels.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(interfaces.ClampLimit(limit)))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	messages := make([]mqtmodels.Message, 0)
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MongoMessageRepository) DistinctLockerIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	values, err := r.coll.Distinct(ctx, "locker_id", bson.M{"locker_id": bson.M{"$ne": nil}})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// EnsureMongoIndexes mirrors the SQL indexes on the two collections.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(messagesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ts_ingest", Value: 1}}},
		{Keys: bson.D{{Key: "topic", Value: 1}}},
		{Keys: bson.D{{Key: "locker_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	_, err = db.Collection(lockerStateCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ts_update", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create locker state index: %w", err)
	}
	return nil
}
