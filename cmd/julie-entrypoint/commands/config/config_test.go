package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliehq/julie-entrypoint/pkg/config"
)

// run executes Cmd under a throwaway root that carries --config.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{"DB_HOST", "DB_PASSWORD", "SECRET_KEY", "DEBUG", "ALLOWED_HOSTS"} {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}

	root := &cobra.Command{Use: "julie-entrypoint", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(Cmd)
	t.Cleanup(func() { root.RemoveCommand(Cmd) })

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"config"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRedact(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Database.Password = "hunter2"
	cfg.Audit.SecretKey = "s3cr3t"

	r := redact(cfg)

	assert.Equal(t, redacted, r.Database.Password)
	assert.Equal(t, redacted, r.Audit.SecretKey)
	assert.Empty(t, r.Database.Admin.Password, "unset values stay empty")
	assert.Equal(t, "hunter2", cfg.Database.Password, "original untouched")
}

func TestShow_RedactsPasswords(t *testing.T) {
	t.Setenv("JULIE_DATABASE_PASSWORD", "hunter2")

	out, err := run(t, "show")

	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, redacted)
}

func TestInit_WritesDefaultsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "julie", "entrypoint.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultGateInterval, cfg.Gate.Interval)

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
	initForce = false
}

func TestValidate_ListsAuditFindings(t *testing.T) {
	t.Setenv("JULIE_AUDIT_DEBUG", "true")

	out, err := run(t, "validate")

	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "debug (error)")
	assert.Contains(t, out, "Migrations:      command")
}

func TestValidate_InvalidConfig(t *testing.T) {
	t.Setenv("JULIE_GATE_PROBE", "icmp")

	_, err := run(t, "validate")

	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestSchema(t *testing.T) {
	raw, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc struct {
		Properties map[string]struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	require.Contains(t, doc.Properties, "gate")
	assert.Contains(t, doc.Properties["gate"].Properties, "deadline")
	require.Contains(t, doc.Properties, "audit")
	assert.NotContains(t, doc.Properties["audit"].Properties, "secret_key")
}
