package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/juliehq/julie-entrypoint/pkg/audit"
)

// ErrInvalid marks configuration errors. The CLI maps it to exit code 2.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the julie-entrypoint configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (JULIE_*, plus the server's own DB_*, DEBUG,
//     SECRET_KEY and ALLOWED_HOSTS)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// A configuration file is optional: a container started with only the
// server's environment gets a fully working bootstrap.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing of the bootstrap stages
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls the Prometheus textfile written before handoff
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Database is the server's database; its host and port are the
	// readiness gate's dependency target.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	Gate       GateConfig       `mapstructure:"gate" yaml:"gate"`
	Migrations MigrationsConfig `mapstructure:"migrations" yaml:"migrations"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
	Assets     AssetsConfig     `mapstructure:"assets" yaml:"assets"`
	Handoff    HandoffConfig    `mapstructure:"handoff" yaml:"handoff"`

	// Logs configures the admin log viewer
	Logs LogsConfig `mapstructure:"logs" yaml:"logs"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig controls the Prometheus textfile export. Bootstrap is too
// short-lived to be scraped; node_exporter's textfile collector picks the
// file up instead.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Textfile is the .prom file written before handoff and on failure
	Textfile string `mapstructure:"textfile" validate:"required_if=Enabled true" yaml:"textfile"`
}

// DatabaseConfig describes the server's PostgreSQL database.
type DatabaseConfig struct {
	// Host is the dependency host. Empty means no dependency is declared.
	Host string `mapstructure:"host" yaml:"host"`

	// Port defaults to 5432 when a host is set
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// SSLMode is passed through to the driver
	SSLMode string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full" yaml:"sslmode"`

	// ConnectTimeout bounds each connection attempt of the admin commands
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0" yaml:"connect_timeout"`

	// Admin holds maintenance credentials used by `dbinit` to create the
	// application role and database.
	Admin DatabaseAdminConfig `mapstructure:"admin" yaml:"admin"`
}

// DatabaseAdminConfig holds maintenance credentials.
type DatabaseAdminConfig struct {
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`
}

// GateConfig controls the readiness gate.
type GateConfig struct {
	// Interval between probes
	Interval time.Duration `mapstructure:"interval" validate:"gt=0" yaml:"interval"`

	// Deadline bounds the whole wait. Zero waits forever.
	Deadline time.Duration `mapstructure:"deadline" validate:"gte=0" yaml:"deadline"`

	// Probe selects how reachability is tested
	// Valid values: tcp, postgres
	Probe string `mapstructure:"probe" validate:"required,oneof=tcp postgres" yaml:"probe"`

	// ProbeWindow is how long an accepted TCP connection must stay open
	// before the probe counts it as ready
	ProbeWindow time.Duration `mapstructure:"probe_window" validate:"gte=0" yaml:"probe_window"`

	// DialTimeout bounds a single probe
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gt=0" yaml:"dial_timeout"`
}

// MigrationsConfig controls the schema synchronizer.
type MigrationsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Engine selects the migration engine
	// Valid values: migrate (SQL files in Dir), command (external tool)
	Engine string `mapstructure:"engine" validate:"required,oneof=migrate command" yaml:"engine"`

	// Dir holds NNN_name.up.sql / NNN_name.down.sql files (engine: migrate)
	Dir string `mapstructure:"dir" validate:"required_if=Engine migrate" yaml:"dir"`

	// Table is the schema version table (engine: migrate)
	Table string `mapstructure:"table" yaml:"table"`

	// Command is the external engine invocation (engine: command)
	Command []string `mapstructure:"command" validate:"required_if=Engine command" yaml:"command"`
}

// AuditConfig controls the advisory deploy readiness audit.
type AuditConfig struct {
	// Policy decides how audit findings affect bootstrap
	// Valid values: warn (soft failure), fail (hard failure), off
	Policy string `mapstructure:"policy" validate:"required,oneof=warn fail off" yaml:"policy"`

	// Command is an optional external audit (e.g. manage.py check --deploy)
	Command []string `mapstructure:"command" yaml:"command,omitempty"`

	// The server settings inspected by the built-in checks.
	SecretKey    string   `mapstructure:"secret_key" yaml:"-" jsonschema:"-"`
	Debug        string   `mapstructure:"debug" yaml:"debug"`
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	ForceHTTPS   bool     `mapstructure:"force_https" yaml:"force_https"`
}

// AssetsConfig controls the asset materializer.
type AssetsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Sources are copied in order; the first source providing a path wins
	Sources []string `mapstructure:"sources" validate:"required_if=Enabled true" yaml:"sources"`

	// StaticRoot receives the assets, the manifest and the marker
	StaticRoot string `mapstructure:"static_root" validate:"required" yaml:"static_root"`

	// Manifest is the name of the path-to-digest manifest ("" disables it)
	Manifest string `mapstructure:"manifest" yaml:"manifest"`

	// Marker is the name of the liveness marker file
	Marker string `mapstructure:"marker" validate:"required" yaml:"marker"`

	// Clear removes files under StaticRoot that no source provides
	Clear bool `mapstructure:"clear" yaml:"clear"`
}

// HandoffConfig controls how the server process is started.
type HandoffConfig struct {
	// Mode selects the handoff strategy
	// Valid values: auto (exec where available), exec, supervise
	Mode string `mapstructure:"mode" validate:"required,oneof=auto exec supervise" yaml:"mode"`
}

// LogsConfig configures the `logs` viewer.
type LogsConfig struct {
	// Dir is the server's log directory
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Files maps short names to file names under Dir
	Files map[string]string `mapstructure:"files" yaml:"files"`
}

// DSN returns the PostgreSQL keyword/value connection string for the
// application credentials.
func (c *DatabaseConfig) DSN() string {
	return c.dsn(c.User, c.Password, c.Name)
}

// AdminDSN returns the connection string for the maintenance credentials.
func (c *DatabaseConfig) AdminDSN() string {
	return c.dsn(c.Admin.User, c.Admin.Password, c.Admin.Database)
}

// AuditSettings returns the production settings the deploy audit checks.
func (c *Config) AuditSettings() audit.Settings {
	return audit.Settings{
		SecretKey:        c.Audit.SecretKey,
		Debug:            c.Audit.Debug,
		AllowedHosts:     c.Audit.AllowedHosts,
		ForceHTTPS:       c.Audit.ForceHTTPS,
		DatabasePassword: c.Database.Password,
		SSLMode:          c.Database.SSLMode,
	}
}

func (c *DatabaseConfig) dsn(user, password, dbname string) string {
	parts := []string{
		"host=" + dsnQuote(c.Host),
		fmt.Sprintf("port=%d", c.Port),
	}
	if user != "" {
		parts = append(parts, "user="+dsnQuote(user))
	}
	if password != "" {
		parts = append(parts, "password="+dsnQuote(password))
	}
	if dbname != "" {
		parts = append(parts, "dbname="+dsnQuote(dbname))
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		secs := int(c.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	return strings.Join(parts, " ")
}

// dsnQuote quotes a keyword/value DSN value when it is empty or contains
// spaces, quotes or backslashes.
func dsnQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// Load loads configuration from file, environment, and defaults.
//
// An explicitly named file must exist. Without one, the default location is
// tried and its absence is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v, configPath != ""); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", ErrInvalid, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config files may carry database passwords.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with defaults, environment variables and the
// config file location.
func setupViper(v *viper.Viper, configPath string) {
	// Example: JULIE_GATE_DEADLINE=2m
	v.SetEnvPrefix("JULIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerDefaults(v)
	bindServerEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/julie/entrypoint.{yaml,toml}, then /etc/julie
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath("/etc/julie")
		v.SetConfigName("entrypoint")
		v.SetConfigType("yaml")
	}
}

// bindServerEnv binds the variables the server itself reads so one
// environment drives both processes. The JULIE_ form still wins.
func bindServerEnv(v *viper.Viper) {
	bindings := map[string]string{
		"database.host":       "DB_HOST",
		"database.port":       "DB_PORT",
		"database.name":       "DB_NAME",
		"database.user":       "DB_USER",
		"database.password":   "DB_PASSWORD",
		"audit.secret_key":    "SECRET_KEY",
		"audit.debug":         "DEBUG",
		"audit.allowed_hosts": "ALLOWED_HOSTS",
		"audit.force_https":   "FORCE_HTTPS",
	}
	for key, legacy := range bindings {
		prefixed := "JULIE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper, explicit bool) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		if os.IsNotExist(err) && !explicit {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration, so files and env vars can say "2s", "5m" or "0".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" || v == "0" {
				return time.Duration(0), nil
			}
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "julie")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "julie")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "entrypoint.yaml")
}
