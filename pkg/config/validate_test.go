package config

import (
	"strings"
	"testing"
)

func TestValidate_DefaultConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected default config to pass validation, got: %v", err)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "LOUD" }, "logging.level: failed 'oneof'"},
		{"InvalidLogFormat", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"PortOutOfRange", func(c *Config) { c.Database.Port = 70000 }, "database.port: failed 'max'"},
		{"ZeroInterval", func(c *Config) { c.Gate.Interval = 0 }, "gate.interval: failed 'gt'"},
		{"NegativeDeadline", func(c *Config) { c.Gate.Deadline = -1 }, "gate.deadline"},
		{"UnknownProbe", func(c *Config) { c.Gate.Probe = "icmp" }, "gate.probe"},
		{"PostgresProbeWithoutHost", func(c *Config) { c.Gate.Probe = "postgres" }, "requires database.host"},
		{"MigrateEngineWithoutHost", func(c *Config) { c.Migrations.Engine = "migrate" }, "requires database.host"},
		{"CommandEngineWithoutCommand", func(c *Config) { c.Migrations.Command = nil }, "migrations.command"},
		{"UnknownAuditPolicy", func(c *Config) { c.Audit.Policy = "panic" }, "audit.policy"},
		{"AssetsWithoutSources", func(c *Config) { c.Assets.Sources = nil }, "assets.sources"},
		{"MetricsWithoutTextfile", func(c *Config) { c.Metrics.Enabled = true }, "metrics.textfile"},
		{"UnknownHandoffMode", func(c *Config) { c.Handoff.Mode = "fork" }, "handoff.mode"},
		{"SampleRateAboveOne", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_DisabledSectionsRelaxed(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Assets.Enabled = false
	cfg.Assets.Sources = nil

	if err := Validate(cfg); err != nil {
		t.Errorf("Disabled assets should not require sources, got: %v", err)
	}
}
