package commands

import (
	"context"
	"fmt"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/internal/telemetry"
	"github.com/juliehq/julie-entrypoint/pkg/config"
)

// loadConfig loads the configuration named by --config and applies
// command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
	}
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("%w: failed to initialize logger: %w", config.ErrInvalid, err)
	}
	return nil
}

// InitTelemetry starts tracing when enabled. The returned shutdown is
// always safe to call.
func InitTelemetry(ctx context.Context, cfg *config.Config, bootID string) (func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = true
	tcfg.ServiceVersion = Version
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRate = cfg.Telemetry.SampleRate
	tcfg.BootID = bootID

	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return shutdown, nil
}
