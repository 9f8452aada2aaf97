// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/commonward/communitygate/internal/app/entitlement"
	entitlementapifeature "github.com/commonward/communitygate/internal/app/features/entitlementapi"
	healthfeature "github.com/commonward/communitygate/internal/app/features/health"
	auditstore "github.com/commonward/communitygate/internal/app/store/audit"
	featurestore "github.com/commonward/communitygate/internal/app/store/features"
	householdstore "github.com/commonward/communitygate/internal/app/store/households"
	membershipstore "github.com/commonward/communitygate/internal/app/store/memberships"
	subscriptionstore "github.com/commonward/communitygate/internal/app/store/subscriptions"
	tenantstore "github.com/commonward/communitygate/internal/app/store/tenants"
	userstore "github.com/commonward/communitygate/internal/app/store/users"
	"github.com/commonward/communitygate/internal/app/system/auditlog"
	"github.com/commonward/communitygate/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup,
// and any Startup hooks have completed. CommunityGate assembles the
// entity stores, the identity/feature/subscription components, and the
// entitlement engine, then mounts the JSON operation surface and the
// health endpoint.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	auditLogger := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Membership: appCfg.AuditLogMembership,
		Access:     appCfg.AuditLogAccess,
	})

	// identity_provider=stub is the only built-in mode; ValidateConfig
	// rejected anything else.
	provider := entitlement.NewStubProvider()

	identity := entitlement.NewIdentityResolver(userstore.New(db), provider, logger)
	features := entitlement.NewFeatureResolver(featurestore.New(db), logger)
	subs := entitlement.NewSubscriptionGate(subscriptionstore.New(db), tenantstore.New(db), logger)

	engine := entitlement.New(
		membershipstore.New(db),
		householdstore.New(db),
		identity,
		features,
		subs,
		auditLogger,
		logger,
	)
	engine.SetRetryBackoff(appCfg.RetryBackoff)

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Entitlement operation surface, rate limited per actor
	apiHandler := entitlementapifeature.NewHandler(engine, logger)
	api := chi.NewRouter()
	if appCfg.APIRateLimit > 0 {
		api.Use(ratelimit.New(appCfg.APIRateLimit, appCfg.APIRateWindow).Middleware)
	}
	api.Mount("/", entitlementapifeature.Routes(apiHandler))
	r.Mount("/api", api)

	return r, nil
}
