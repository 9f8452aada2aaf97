// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for CommunityGate.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, identity_provider, etc.
//   - Environment variables: COMMUNITYGATE_MONGO_URI, COMMUNITYGATE_IDENTITY_PROVIDER, etc.
//   - Command-line flags: --mongo_uri, --identity_provider, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "community_gate", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Identity provider
	{Name: "identity_provider", Default: "stub", Desc: "Identity provider mode: 'stub' (in-memory, dev only)"},

	// Engine tuning
	{Name: "retry_backoff", Default: "250ms", Desc: "Backoff before the single retry of a transient store/provider failure"},

	// API rate limiting
	{Name: "api_rate_limit", Default: 120, Desc: "Max API requests per actor per window (0 disables)"},
	{Name: "api_rate_window", Default: "1m", Desc: "API rate limit window duration"},

	// Timeout overrides (blank keeps the built-in default)
	{Name: "timeout_ping", Default: "", Desc: "Health-check ping timeout (e.g., 2s)"},
	{Name: "timeout_short", Default: "", Desc: "Single-document operation timeout (e.g., 5s)"},
	{Name: "timeout_medium", Default: "", Desc: "Multi-document operation timeout (e.g., 10s)"},
	{Name: "timeout_provider", Default: "", Desc: "Identity provider call timeout (e.g., 15s)"},
	{Name: "timeout_batch", Default: "", Desc: "Batch operation timeout (e.g., 60s)"},

	// Audit logging settings
	{Name: "audit_log_membership", Default: "all", Desc: "Membership event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_access", Default: "log", Desc: "Access-decision logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// environment variables (WAFFLE_* for core, COMMUNITYGATE_* for app),
// and command-line flags, with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "COMMUNITYGATE", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		IdentityProvider: appValues.String("identity_provider"),

		RetryBackoff: appValues.Duration("retry_backoff", 250*time.Millisecond),

		APIRateLimit:  appValues.Int("api_rate_limit"),
		APIRateWindow: appValues.Duration("api_rate_window", time.Minute),

		TimeoutPing:     appValues.Duration("timeout_ping", 0),
		TimeoutShort:    appValues.Duration("timeout_short", 0),
		TimeoutMedium:   appValues.Duration("timeout_medium", 0),
		TimeoutProvider: appValues.Duration("timeout_provider", 0),
		TimeoutBatch:    appValues.Duration("timeout_batch", 0),

		AuditLogMembership: appValues.String("audit_log_membership"),
		AuditLogAccess:     appValues.String("audit_log_access"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// CommunityGate validates the MongoDB URI format and the enum-valued
// settings to catch configuration errors before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.IdentityProvider != "stub" {
		return fmt.Errorf("unknown identity_provider %q (only 'stub' is built in)", appCfg.IdentityProvider)
	}

	for name, mode := range map[string]string{
		"audit_log_membership": appCfg.AuditLogMembership,
		"audit_log_access":     appCfg.AuditLogAccess,
	} {
		switch mode {
		case "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be one of all/db/log/off, got %q", name, mode)
		}
	}

	if appCfg.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative")
	}

	return nil
}
