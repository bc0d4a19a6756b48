package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Migration is a versioned set of index definitions.
type Migration struct {
	Version     int
	Description string
	Indexes     map[string][]mongo.IndexModel
}

// AppliedMigration is the record kept in the schema_migrations collection.
type AppliedMigration struct {
	Version     int       `bson:"_id"`
	Description string    `bson:"description"`
	AppliedAt   time.Time `bson:"applied_at"`
}

// Migrations lists every index migration in version order.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Unique message id and username",
		Indexes: map[string][]mongo.IndexModel{
			messagesCollection: {
				{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_message_id")},
			},
			usersCollection: {
				{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_username")},
			},
		},
	},
	{
		Version:     2,
		Description: "Conversation and participant lookups",
		Indexes: map[string][]mongo.IndexModel{
			messagesCollection: {
				{Keys: bson.D{{Key: "wa_id", Value: 1}, {Key: "timestamp", Value: 1}}, Options: options.Index().SetName("idx_conversation_timestamp")},
				{Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "processed_at", Value: -1}}, Options: options.Index().SetName("idx_timestamp_desc")},
			},
			chatsCollection: {
				{Keys: bson.D{{Key: "participants", Value: 1}}, Options: options.Index().SetName("idx_participants")},
			},
		},
	},
}

// ApplyMigrations creates the indexes of every migration newer than the
// recorded version.
func (m *MongoManager) ApplyMigrations(ctx context.Context) error {
	current, err := m.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	slog.Info("db: schema version", "version", current)

	applied := 0
	for _, mig := range Migrations {
		if mig.Version <= current {
			continue
		}
		slog.Info("db: applying migration", "version", mig.Version, "description", mig.Description)
		if err := m.applyMigration(ctx, mig); err != nil {
			return fmt.Errorf("apply migration %d: %w", mig.Version, err)
		}
		applied++
	}

	if applied == 0 {
		slog.Info("db: schema up to date")
	} else {
		slog.Info("db: migrations applied", "count", applied)
	}
	return nil
}

func (m *MongoManager) currentVersion(ctx context.Context) (int, error) {
	var last AppliedMigration
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	err := m.db.Collection(migrationsCollection).FindOne(ctx, bson.M{}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Version, nil
}

func (m *MongoManager) applyMigration(ctx context.Context, mig Migration) error {
	for coll, idx := range mig.Indexes {
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	_, err := m.db.Collection(migrationsCollection).InsertOne(ctx, AppliedMigration{
		Version:     mig.Version,
		Description: mig.Description,
		AppliedAt:   time.Now().UTC(),
	})
	return err
}
