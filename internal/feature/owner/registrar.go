// Package owner bootstraps the configured bot owner so the owner-only
// commands (/users, /broadcast) have a role to check against.
package owner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"upi_qr_bot/internal/domain"
	"upi_qr_bot/internal/logging"
)

type userCollection interface {
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar reconciles the stored owner record with the configured owner id.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureOwner makes the configured user id the sole owner: any other record
// holding the owner role is demoted to admin, and the configured id is
// upserted with role=owner. Runs once at startup before polling begins.
func (r *Registrar) EnsureOwner(ctx context.Context, ownerID int64) error {
	if r == nil || r.users == nil {
		return errors.New("owner registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if ownerID == 0 {
		return errors.New("owner id is required")
	}

	now := time.Now().UTC()

	demoted, err := r.demoteStaleOwners(ctx, ownerID, now)
	if err != nil {
		return err
	}

	created, err := r.upsertOwner(ctx, ownerID, now)
	if err != nil {
		return err
	}

	r.logger.WithFields(logging.Fields{
		"event":         "owner_bootstrap",
		"owner_id":      ownerID,
		"demoted":       demoted,
		"owner_created": created,
	}).Info("ensured bot owner")

	return nil
}

func (r *Registrar) demoteStaleOwners(ctx context.Context, ownerID int64, now time.Time) (int64, error) {
	result, err := r.users.UpdateMany(ctx,
		bson.M{"role": domain.RoleOwner, "user_id": bson.M{"$ne": ownerID}},
		bson.M{"$set": bson.M{
			"role":       domain.RoleAdmin,
			"updated_at": now,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("demote previous owners: %w", err)
	}
	if result == nil {
		return 0, nil
	}

	return result.ModifiedCount, nil
}

func (r *Registrar) upsertOwner(ctx context.Context, ownerID int64, now time.Time) (bool, error) {
	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": ownerID},
		bson.M{
			"$set": bson.M{
				"role":       domain.RoleOwner,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"user_id":      ownerID,
				"created_at":   now,
				"last_seen_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure owner: %w", err)
	}

	return result != nil && result.UpsertedCount > 0, nil
}
