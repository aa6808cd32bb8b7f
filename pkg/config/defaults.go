package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values. The server layout matches the image built by the
// Dockerfile: code in the working directory, static sources in ./static,
// collected assets in ./staticfiles and rotating logs in ./logs.
const (
	DefaultGateInterval    = 2 * time.Second
	DefaultGateProbeWindow = 100 * time.Millisecond
	DefaultGateDialTimeout = 2 * time.Second
	DefaultDatabasePort    = 5432
	DefaultConnectTimeout  = 5 * time.Second
	DefaultStaticRoot      = "staticfiles"
	DefaultManifest        = "staticfiles.json"
	DefaultMarker          = "health.txt"
	DefaultMigrationsTable = "schema_migrations"
)

// DefaultMigrationCommand is the server's own migration engine, run with
// prompts disabled.
var DefaultMigrationCommand = []string{"python", "manage.py", "migrate", "--noinput"}

// DefaultLogFiles are the server's rotating log files.
var DefaultLogFiles = map[string]string{
	"app":      "app_log.log",
	"django":   "django.log",
	"error":    "error.log",
	"security": "security.log",
}

// registerDefaults makes every key known to viper, which is what lets
// AutomaticEnv resolve JULIE_* variables without a config file.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.connect_timeout", DefaultConnectTimeout)
	v.SetDefault("database.admin.user", "postgres")
	v.SetDefault("database.admin.password", "")
	v.SetDefault("database.admin.database", "postgres")

	v.SetDefault("gate.interval", DefaultGateInterval)
	v.SetDefault("gate.deadline", 0)
	v.SetDefault("gate.probe", "tcp")
	v.SetDefault("gate.probe_window", DefaultGateProbeWindow)
	v.SetDefault("gate.dial_timeout", DefaultGateDialTimeout)

	v.SetDefault("migrations.enabled", true)
	v.SetDefault("migrations.engine", "command")
	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("migrations.table", DefaultMigrationsTable)
	v.SetDefault("migrations.command", DefaultMigrationCommand)

	v.SetDefault("audit.policy", "warn")
	v.SetDefault("audit.command", []string{})
	v.SetDefault("audit.secret_key", "")
	v.SetDefault("audit.debug", "")
	v.SetDefault("audit.allowed_hosts", []string{})
	v.SetDefault("audit.force_https", false)

	v.SetDefault("assets.enabled", true)
	v.SetDefault("assets.sources", []string{"static"})
	v.SetDefault("assets.static_root", DefaultStaticRoot)
	v.SetDefault("assets.manifest", DefaultManifest)
	v.SetDefault("assets.marker", DefaultMarker)
	v.SetDefault("assets.clear", false)

	v.SetDefault("handoff.mode", "auto")

	v.SetDefault("logs.dir", "logs")
	v.SetDefault("logs.files", DefaultLogFiles)
}

// ApplyDefaults fills zero values and normalizes what Load decoded.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans are left alone; their defaults come from viper
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyDatabaseDefaults(&cfg.Database)
	applyGateDefaults(&cfg.Gate)
	applyMigrationsDefaults(&cfg.Migrations)
	applyAuditDefaults(&cfg.Audit)
	applyAssetsDefaults(&cfg.Assets)
	applyHandoffDefaults(&cfg.Handoff)
	applyLogsDefaults(&cfg.Logs)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyDatabaseDefaults defaults the port only when a host is declared:
// an empty host means "no dependency" and must stay distinguishable.
func applyDatabaseDefaults(cfg *DatabaseConfig) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host != "" && cfg.Port == 0 {
		cfg.Port = DefaultDatabasePort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Admin.User == "" {
		cfg.Admin.User = "postgres"
	}
	if cfg.Admin.Database == "" {
		cfg.Admin.Database = "postgres"
	}
}

func applyGateDefaults(cfg *GateConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultGateInterval
	}
	if cfg.Probe == "" {
		cfg.Probe = "tcp"
	}
	if cfg.ProbeWindow == 0 {
		cfg.ProbeWindow = DefaultGateProbeWindow
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultGateDialTimeout
	}
}

func applyMigrationsDefaults(cfg *MigrationsConfig) {
	if cfg.Engine == "" {
		cfg.Engine = "command"
	}
	if cfg.Dir == "" {
		cfg.Dir = "migrations"
	}
	if cfg.Table == "" {
		cfg.Table = DefaultMigrationsTable
	}
	cfg.Command = splitCommand(cfg.Command)
	if cfg.Engine == "command" && len(cfg.Command) == 0 {
		cfg.Command = append([]string(nil), DefaultMigrationCommand...)
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	cfg.Policy = strings.ToLower(cfg.Policy)
	if cfg.Policy == "" {
		cfg.Policy = "warn"
	}
	cfg.Command = splitCommand(cfg.Command)

	hosts := cfg.AllowedHosts[:0]
	for _, h := range cfg.AllowedHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	cfg.AllowedHosts = hosts
}

func applyAssetsDefaults(cfg *AssetsConfig) {
	if cfg.StaticRoot == "" {
		cfg.StaticRoot = DefaultStaticRoot
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
}

func applyHandoffDefaults(cfg *HandoffConfig) {
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.Mode == "" {
		cfg.Mode = "auto"
	}
}

func applyLogsDefaults(cfg *LogsConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if len(cfg.Files) == 0 {
		cfg.Files = make(map[string]string, len(DefaultLogFiles))
		for k, v := range DefaultLogFiles {
			cfg.Files[k] = v
		}
	}
}

// splitCommand accepts a command given as one string (typical for env
// vars) and splits it on whitespace.
func splitCommand(argv []string) []string {
	if len(argv) == 1 && strings.ContainsAny(argv[0], " \t") {
		return strings.Fields(argv[0])
	}
	return argv
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry:  TelemetryConfig{Insecure: true},
		Migrations: MigrationsConfig{Enabled: true},
		Assets: AssetsConfig{
			Enabled:  true,
			Sources:  []string{"static"},
			Manifest: DefaultManifest,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
