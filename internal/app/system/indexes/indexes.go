// internal/app/system/indexes/indexes.go

// Package indexes reconciles the index sets the entitlement engine
// depends on. The unique compound index on memberships(tenant_id,
// user_id) is what makes concurrent membership creation safe: two
// racing inserts for the same pair resolve at the database, one wins
// and the other surfaces a duplicate-key error.
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureAll is called at startup. Each ensure* function is idempotent.
// Errors are aggregated so every problem is visible and startup can fail fast.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureTenants(ctx, db); err != nil {
		problems = append(problems, "tenants: "+err.Error())
	}
	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureMemberships(ctx, db); err != nil {
		problems = append(problems, "memberships: "+err.Error())
	}
	if err := ensureHouseholds(ctx, db); err != nil {
		problems = append(problems, "households: "+err.Error())
	}
	if err := ensureFeatureDefinitions(ctx, db); err != nil {
		problems = append(problems, "feature_definitions: "+err.Error())
	}
	if err := ensureFeatureOverrides(ctx, db); err != nil {
		problems = append(problems, "feature_overrides: "+err.Error())
	}
	if err := ensureSubscriptionStates(ctx, db); err != nil {
		problems = append(problems, "subscription_states: "+err.Error())
	}
	if err := ensureAuditEvents(ctx, db); err != nil {
		problems = append(problems, "audit_events: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := false
	bv := false
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// isDuplicateKeyErr is a best-effort duplicate detector that works across
// Mongo-compatible vendors.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // E11000 duplicate key error index
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// ensureIndexSet makes the collection carry exactly the desired indexes:
// an existing index with the same keys and uniqueness is reused, a
// mismatched one is dropped and recreated, a missing one is created.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			if m.Options.Unique != nil {
				desiredUnique = m.Options.Unique
			}
		}
		desiredSig := keySig(m.Keys.(bson.D))
		start := time.Now()

		existing := map[string]existingIndex{} // sig -> index
		cur, err := coll.Indexes().List(ctx)
		if err == nil {
			for cur.Next(ctx) {
				var idx existingIndex
				if err := cur.Decode(&idx); err != nil {
					zap.L().Warn("failed to decode existing index",
						zap.String("collection", coll.Name()),
						zap.Error(err))
					continue
				}
				existing[keySig(idx.Key)] = idx
			}
			cur.Close(ctx)
		}

		if ex, ok := existing[desiredSig]; ok {
			if sameBoolPtr(desiredUnique, ex.Unique) {
				zap.L().Info("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", desiredSig))
				continue
			}
			// Options mismatch (e.g., upgrading to unique). Drop & recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), desiredName))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			}
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.Bool("unique", desiredUnique != nil && *desiredUnique),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureTenants(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("tenants")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Slug is the stable external identifier; unique and immutable.
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_tenants_slug"),
		},
		// Owner lookups back the first-community-free payment policy.
		{
			Keys:    bson.D{{Key: "owner_user_id", Value: 1}},
			Options: options.Index().SetName("idx_tenants_owner"),
		},
	})
}

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Email is unique across all users. Emails are stored normalized
		// (lowercase), so this also enforces case-insensitive uniqueness.
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
		},
	})
}

func ensureMemberships(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("memberships")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Uniqueness: exactly one membership per (tenant, user). This is
		// the concurrency-critical invariant; duplicate-invite races are
		// resolved here, not in application code.
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_memberships_tenant_user"),
		},
		// Fast: list a tenant's members by role/status (guard rosters, manager lists).
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "role", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_memberships_tenant_role_status"),
		},
		// Fast: list a household's members.
		{
			Keys:    bson.D{{Key: "household_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_memberships_household_user"),
		},
	})
}

func ensureHouseholds(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("households")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Name lookup within a tenant is exact-match and case-sensitive.
		// Deliberately NOT unique: resolve-or-create has a documented race
		// window across concurrent batches, and duplicates are manually
		// correctable. A unique index would turn that race into failed
		// imports instead.
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_households_tenant_name"),
		},
	})
}

func ensureFeatureDefinitions(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("feature_definitions")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_featdefs_key"),
		},
	})
}

func ensureFeatureOverrides(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("feature_overrides")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One override per (tenant, role, key). Tenant-scoped overrides
		// store role as null, which participates in the unique key.
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "role", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_overrides_tenant_role_key"),
		},
	})
}

func ensureSubscriptionStates(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("subscription_states")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// The subscription row is a per-tenant singleton, replaced by
		// upsert rather than accumulated.
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_substates_tenant"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_events")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_tenant_timestamp"),
		},
	})
}
