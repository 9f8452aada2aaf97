// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/commonward/communitygate/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
// CommunityGate applies any configured timeout overrides here so every
// later store and provider call sees them.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:     appCfg.TimeoutPing,
		Short:    appCfg.TimeoutShort,
		Medium:   appCfg.TimeoutMedium,
		Provider: appCfg.TimeoutProvider,
		Batch:    appCfg.TimeoutBatch,
	})
	return nil
}
