package domain

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type registryCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Registry persists user records in MongoDB. Records are soft-deactivated,
// never removed: every read considers only is_active=true documents.
type Registry struct {
	users  registryCollection
	logger *logrus.Entry
}

// NewRegistry constructs a Registry for the provided users collection.
func NewRegistry(users registryCollection, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Registry{
		users:  users,
		logger: logger,
	}
}

// RegisterIfAbsent inserts the user with category 0, is_active=true, and the
// current time as joined_at, only when the user_id is not already present.
// Repeated calls are no-ops and never overwrite joined_at, category, or the
// stored names. Reports whether a new record was created.
func (r *Registry) RegisterIfAbsent(ctx context.Context, user User) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("registry is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if user.UserID == 0 {
		return false, errors.New("user_id is required")
	}

	joined := user.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC().Truncate(time.Millisecond)
	}

	onInsert := bson.M{
		"user_id":   user.UserID,
		"category":  CategoryUnclassified,
		"joined_at": joined,
		"is_active": true,
	}
	if user.Username != "" {
		onInsert["username"] = user.Username
	}
	if user.FirstName != "" {
		onInsert["first_name"] = user.FirstName
	}
	if user.LastName != "" {
		onInsert["last_name"] = user.LastName
	}

	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": user.UserID},
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, storageErr("register user", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.logger.WithFields(logrus.Fields{
			"event":   "user_registered",
			"user_id": user.UserID,
		}).Info("registered new user")
	} else {
		r.logger.WithFields(logrus.Fields{
			"event":   "user_known",
			"user_id": user.UserID,
		}).Debug("user already registered")
	}

	return created, nil
}

// Deactivate marks the user inactive. Absent ids and already-inactive users
// are no-ops; there is no reactivation path.
func (r *Registry) Deactivate(ctx context.Context, userID int64) error {
	if r == nil || r.users == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user_id is required")
	}

	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return storageErr("deactivate user", err)
	}

	if result != nil && result.ModifiedCount > 0 {
		r.logger.WithFields(logrus.Fields{
			"event":   "user_deactivated",
			"user_id": userID,
		}).Info("deactivated user")
	}

	return nil
}

// SetCategory overwrites the user's category code. Absent ids are no-ops.
// The code space is open: no validation beyond the default zero value.
func (r *Registry) SetCategory(ctx context.Context, userID int64, category int) error {
	if r == nil || r.users == nil {
		return errors.New("registry is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user_id is required")
	}

	if _, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"category": category}},
	); err != nil {
		return storageErr("set user category", err)
	}

	return nil
}

// ListActiveIDs returns the ids of all active users, sorted ascending.
func (r *Registry) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, bson.M{"is_active": true}, "list active users")
}

// ListActiveIDsByCategory returns the ids of active users in the given
// category, sorted ascending.
func (r *Registry) ListActiveIDsByCategory(ctx context.Context, category int) ([]int64, error) {
	return r.listIDs(ctx, bson.M{"is_active": true, "category": category}, "list active users by category")
}

func (r *Registry) listIDs(ctx context.Context, filter bson.M, op string) ([]int64, error) {
	if r == nil || r.users == nil {
		return nil, errors.New("registry is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.users.Find(ctx, filter,
		options.Find().
			SetProjection(bson.M{"user_id": 1, "_id": 0}).
			SetSort(bson.D{{Key: "user_id", Value: 1}}),
	)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer cursor.Close(ctx)

	var ids []int64
	for cursor.Next(ctx) {
		var doc struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, storageErr(op, err)
		}
		ids = append(ids, doc.UserID)
	}
	if err := cursor.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	return ids, nil
}
