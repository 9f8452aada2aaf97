// internal/app/entitlement/features.go
package entitlement

import (
	"context"
	"time"

	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// FeatureResolver walks the override hierarchy for one (tenant, role,
// feature) triple. Precedence, most specific first:
//
//	role override > tenant override > global default
//
// An unknown feature key resolves to disabled. There is deliberately no
// caching: per-tenant overrides change at admin speed but a stale grant
// is worse than three indexed point reads.
type FeatureResolver struct {
	features FeatureStore
	log      *zap.Logger
	backoff  time.Duration
}

// NewFeatureResolver wires a resolver over the feature store.
func NewFeatureResolver(features FeatureStore, log *zap.Logger) *FeatureResolver {
	return &FeatureResolver{features: features, log: log, backoff: defaultBackoff}
}

// Resolve returns whether featureKey is enabled for role within tenant.
// Fails closed: any store error propagates instead of guessing.
func (r *FeatureResolver) Resolve(ctx context.Context, tenantID primitive.ObjectID, role, featureKey string) (bool, error) {
	role = normalize.Role(role)

	ro, err := callStore(ctx, r.log, r.backoff, "features.RoleOverride", func(ctx context.Context) (*models.FeatureOverride, error) {
		return r.features.RoleOverride(ctx, tenantID, role, featureKey)
	})
	if err != nil {
		return false, err
	}
	if ro != nil {
		return ro.Enabled, nil
	}

	to, err := callStore(ctx, r.log, r.backoff, "features.TenantOverride", func(ctx context.Context) (*models.FeatureOverride, error) {
		return r.features.TenantOverride(ctx, tenantID, featureKey)
	})
	if err != nil {
		return false, err
	}
	if to != nil {
		return to.Enabled, nil
	}

	def, err := callStore(ctx, r.log, r.backoff, "features.Definition", func(ctx context.Context) (*models.FeatureDefinition, error) {
		return r.features.Definition(ctx, featureKey)
	})
	if err != nil {
		return false, err
	}
	if def == nil {
		// Unknown feature key: disabled everywhere.
		return false, nil
	}
	return def.DefaultEnabled, nil
}
