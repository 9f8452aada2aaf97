// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration; ports, TLS, log level
// and the like live in CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Identity provider configuration
	IdentityProvider string // Provider mode: "stub" (in-memory, dev) is the only built-in

	// Engine tuning
	RetryBackoff time.Duration // Pause before the single transient-failure retry

	// API rate limiting (per actor, sliding window)
	APIRateLimit  int           // Max requests per window; 0 disables limiting
	APIRateWindow time.Duration // Window duration

	// Timeout overrides (zero means keep the package default)
	TimeoutPing     time.Duration
	TimeoutShort    time.Duration
	TimeoutMedium   time.Duration
	TimeoutProvider time.Duration
	TimeoutBatch    time.Duration

	// Audit logging modes: "all" (db+log), "db", "log", or "off"
	AuditLogMembership string
	AuditLogAccess     string
}
