package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

type MongoLockerStateRepository struct {
	coll *mongo.Collection
}

func NewMongoLockerStateRepository(db *mongo.Database) *MongoLockerStateRepository {
	return &MongoLockerStateRepository{coll: db.Collection(lockerStateCollection)}
}

// Upsert uses ReplaceOne so the stored document is exactly state.
func (r *MongoLockerStateRepository) Upsert(ctx context.Context, state mqtmodels.LockerState) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": state.LockerID}, state, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert locker state: %w", err)
	}
	return nil
}

func (r *MongoLockerStateRepository) Get(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var state mqtmodels.LockerState
	if err := r.coll.FindOne(ctx, bson.M{"_id": lockerID}).Decode(&state); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}
