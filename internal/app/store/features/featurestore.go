// internal/app/store/features/featurestore.go

// Package featurestore provides reads over feature definitions (platform
// reference data) and last-write-wins upserts over feature overrides.
// Overrides are administrative and low-frequency; concurrent writers to
// the same key leave the store in the state of whichever write lands
// last, with no history kept.
package featurestore

import (
	"context"
	"time"

	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	defs      *mongo.Collection
	overrides *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		defs:      db.Collection("feature_definitions"),
		overrides: db.Collection("feature_overrides"),
	}
}

// Definition returns the feature definition for a key, or nil if the key
// is unknown.
func (s *Store) Definition(ctx context.Context, key string) (*models.FeatureDefinition, error) {
	var d models.FeatureDefinition
	err := s.defs.FindOne(ctx, bson.M{"key": key}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SeedDefinitions inserts any missing feature definitions. Existing rows
// are left untouched: the definition set is reference data managed
// outside this service, and seeding only fills gaps on a fresh database.
func (s *Store) SeedDefinitions(ctx context.Context, defs []models.FeatureDefinition) error {
	for _, d := range defs {
		filter := bson.M{"key": d.Key}
		update := bson.M{
			"$setOnInsert": bson.M{
				"_id":             primitive.NewObjectID(),
				"key":             d.Key,
				"name":            d.Name,
				"default_enabled": d.DefaultEnabled,
			},
		}
		opts := options.Update().SetUpsert(true)
		if _, err := s.defs.UpdateOne(ctx, filter, update, opts); err != nil {
			return err
		}
	}
	return nil
}

// SetDefault changes the global default for an existing feature key.
// Unknown keys are not created here; definitions enter through seeding.
func (s *Store) SetDefault(ctx context.Context, key string, enabled bool) error {
	_, err := s.defs.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"default_enabled": enabled, "updated_at": time.Now().UTC()}})
	return err
}

// TenantOverride returns the tenant-wide override for (tenant, key), or
// nil if no override exists at that level.
func (s *Store) TenantOverride(ctx context.Context, tenantID primitive.ObjectID, key string) (*models.FeatureOverride, error) {
	var o models.FeatureOverride
	err := s.overrides.FindOne(ctx, bson.M{"tenant_id": tenantID, "role": nil, "key": key}).Decode(&o)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// RoleOverride returns the role-scoped override for (tenant, role, key),
// or nil if no override exists at that level.
func (s *Store) RoleOverride(ctx context.Context, tenantID primitive.ObjectID, role, key string) (*models.FeatureOverride, error) {
	var o models.FeatureOverride
	err := s.overrides.FindOne(ctx, bson.M{"tenant_id": tenantID, "role": normalize.Role(role), "key": key}).Decode(&o)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SetTenantOverride upserts the tenant-wide override for (tenant, key).
func (s *Store) SetTenantOverride(ctx context.Context, tenantID primitive.ObjectID, key string, enabled bool) error {
	return s.upsert(ctx, bson.M{"tenant_id": tenantID, "role": nil, "key": key}, enabled)
}

// SetRoleOverride upserts the role-scoped override for (tenant, role, key).
func (s *Store) SetRoleOverride(ctx context.Context, tenantID primitive.ObjectID, role, key string, enabled bool) error {
	return s.upsert(ctx, bson.M{"tenant_id": tenantID, "role": normalize.Role(role), "key": key}, enabled)
}

func (s *Store) upsert(ctx context.Context, filter bson.M, enabled bool) error {
	update := bson.M{
		"$set": bson.M{
			"enabled":    enabled,
			"updated_at": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"_id": primitive.NewObjectID(),
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.overrides.UpdateOne(ctx, filter, update, opts)
	return err
}

// ClearTenantOverride removes the tenant-wide override for (tenant, key).
// Clearing a missing override is a no-op.
func (s *Store) ClearTenantOverride(ctx context.Context, tenantID primitive.ObjectID, key string) error {
	_, err := s.overrides.DeleteOne(ctx, bson.M{"tenant_id": tenantID, "role": nil, "key": key})
	return err
}

// ClearRoleOverride removes the role-scoped override for (tenant, role, key).
// Clearing a missing override is a no-op.
func (s *Store) ClearRoleOverride(ctx context.Context, tenantID primitive.ObjectID, role, key string) error {
	_, err := s.overrides.DeleteOne(ctx, bson.M{"tenant_id": tenantID, "role": normalize.Role(role), "key": key})
	return err
}
