package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productionSettings() Settings {
	return Settings{
		SecretKey:        strings.Repeat("k", 64),
		Debug:            "False",
		AllowedHosts:     []string{"api.julie.example"},
		ForceHTTPS:       true,
		DatabasePassword: "s3cret",
		SSLMode:          "require",
	}
}

func checks(rep Report) []string {
	out := make([]string, 0, len(rep.Findings))
	for _, f := range rep.Findings {
		out = append(out, f.Check+"/"+string(f.Severity))
	}
	return out
}

func TestAudit_ProductionSettingsPass(t *testing.T) {
	rep := New(productionSettings(), nil).Run(context.Background())

	assert.Empty(t, rep.Findings)
	assert.NoError(t, rep.Err())
}

func TestAudit_BuiltinChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"MissingSecretKey", func(s *Settings) { s.SecretKey = "" }, "secret_key/error"},
		{"PlaceholderSecretKey", func(s *Settings) { s.SecretKey = "django-insecure-change-this-in-production" }, "secret_key/error"},
		{"ShortSecretKey", func(s *Settings) { s.SecretKey = "short" }, "secret_key/warning"},
		{"DebugTrue", func(s *Settings) { s.Debug = "TRUE" }, "debug/error"},
		{"DebugUnset", func(s *Settings) { s.Debug = "" }, "debug/error"},
		{"NoAllowedHosts", func(s *Settings) { s.AllowedHosts = nil }, "allowed_hosts/error"},
		{"WildcardHost", func(s *Settings) { s.AllowedHosts = []string{"*"} }, "allowed_hosts/warning"},
		{"NoPassword", func(s *Settings) { s.DatabasePassword = "" }, "database_password/error"},
		{"SSLDisabled", func(s *Settings) { s.SSLMode = "disable" }, "database_sslmode/warning"},
		{"NoForceHTTPS", func(s *Settings) { s.ForceHTTPS = false }, "force_https/warning"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := productionSettings()
			tt.mutate(&s)

			rep := New(s, nil).Run(context.Background())

			assert.Equal(t, []string{tt.want}, checks(rep))
		})
	}
}

func TestAudit_DebugOnlyLiteralTrueEnables(t *testing.T) {
	for _, v := range []string{"False", "0", "no", "off"} {
		s := productionSettings()
		s.Debug = v
		assert.Empty(t, New(s, nil).Run(context.Background()).Findings, v)
	}
}

func TestAudit_Command(t *testing.T) {
	t.Run("FailureIsErrorFinding", func(t *testing.T) {
		var got []string
		a := New(productionSettings(), []string{"python", "manage.py", "check", "--deploy"}).
			WithRunner(func(_ context.Context, argv []string) ([]byte, error) {
				got = argv
				return []byte("System check identified some issues:\nsecurity.W004 HSTS not set\n"), errors.New("exit status 1")
			})

		rep := a.Run(context.Background())

		assert.Equal(t, []string{"python", "manage.py", "check", "--deploy"}, got)
		require.Len(t, rep.Errors(), 1)
		assert.Contains(t, rep.Errors()[0].Message, "exit status 1: security.W004 HSTS not set")
		assert.ErrorContains(t, rep.Err(), "command: python manage.py check --deploy")
	})

	t.Run("SuccessAddsNothing", func(t *testing.T) {
		a := New(productionSettings(), []string{"true"}).
			WithRunner(func(context.Context, []string) ([]byte, error) { return nil, nil })

		assert.Empty(t, a.Run(context.Background()).Findings)
	})
}

func TestReportPartitions(t *testing.T) {
	rep := Report{Findings: []Finding{
		{Check: "a", Severity: SeverityWarning, Message: "w"},
		{Check: "b", Severity: SeverityError, Message: "e"},
	}}

	assert.Len(t, rep.Warnings(), 1)
	assert.Len(t, rep.Errors(), 1)
	assert.EqualError(t, rep.Err(), "b: e")
	assert.Equal(t, "a (warning): w", rep.Findings[0].String())
}
