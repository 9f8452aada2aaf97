// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	featurestore "github.com/commonward/communitygate/internal/app/store/features"
	"github.com/commonward/communitygate/internal/app/system/indexes"
	"github.com/commonward/communitygate/internal/app/system/timeouts"
	"github.com/commonward/communitygate/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB establishes the MongoDB connection and verifies it with a ping.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase))

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// seededFeatures are the platform feature definitions. Seeding only
// inserts missing keys; operator-changed defaults are never clobbered on
// restart.
var seededFeatures = []models.FeatureDefinition{
	{Key: "visitor_codes", Name: "Visitor Codes", DefaultEnabled: true},
	{Key: "messaging", Name: "Community Messaging", DefaultEnabled: true},
	{Key: "maintenance_tickets", Name: "Maintenance Tickets", DefaultEnabled: false},
	{Key: "billing_management", Name: "Billing Management", DefaultEnabled: true},
}

// EnsureSchema reconciles indexes and seeds the feature definitions. Both
// steps are idempotent, so restart after a partial run is safe.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	seedCtx, cancel := context.WithTimeout(ctx, timeouts.Batch())
	defer cancel()
	if err := featurestore.New(deps.MongoDatabase).SeedDefinitions(seedCtx, seededFeatures); err != nil {
		return fmt.Errorf("seed feature definitions: %w", err)
	}

	logger.Info("schema ensured",
		zap.Int("seeded_features", len(seededFeatures)))
	return nil
}
