package audit

import "strings"

// insecureKeyPrefix marks the placeholder key the server ships with.
const insecureKeyPrefix = "django-insecure"

const minSecretKeyLength = 50

type check func(Settings) (Finding, bool)

var builtinChecks = []check{
	checkSecretKey,
	checkDebug,
	checkAllowedHosts,
	checkDatabasePassword,
	checkSSLMode,
	checkForceHTTPS,
}

func checkSecretKey(s Settings) (Finding, bool) {
	f := Finding{Check: "secret_key", Severity: SeverityError}
	switch {
	case s.SecretKey == "":
		f.Message = "SECRET_KEY is not set; the server falls back to its insecure placeholder"
	case strings.HasPrefix(s.SecretKey, insecureKeyPrefix):
		f.Message = "SECRET_KEY is the insecure development placeholder"
	case len(s.SecretKey) < minSecretKeyLength:
		f.Severity = SeverityWarning
		f.Message = "SECRET_KEY is shorter than 50 characters"
	default:
		return Finding{}, false
	}
	return f, true
}

// checkDebug mirrors the server's parsing: DEBUG defaults to on and only
// the literal "true" (any case) enables it when set.
func checkDebug(s Settings) (Finding, bool) {
	v := strings.TrimSpace(s.Debug)
	if v != "" && !strings.EqualFold(v, "true") {
		return Finding{}, false
	}
	msg := "DEBUG is enabled"
	if v == "" {
		msg = "DEBUG is not set and defaults to enabled"
	}
	return Finding{Check: "debug", Severity: SeverityError, Message: msg}, true
}

func checkAllowedHosts(s Settings) (Finding, bool) {
	if len(s.AllowedHosts) == 0 {
		return Finding{Check: "allowed_hosts", Severity: SeverityError,
			Message: "ALLOWED_HOSTS is empty"}, true
	}
	for _, h := range s.AllowedHosts {
		if h == "*" {
			return Finding{Check: "allowed_hosts", Severity: SeverityWarning,
				Message: "ALLOWED_HOSTS accepts any host"}, true
		}
	}
	return Finding{}, false
}

func checkDatabasePassword(s Settings) (Finding, bool) {
	if s.DatabasePassword != "" {
		return Finding{}, false
	}
	return Finding{Check: "database_password", Severity: SeverityError,
		Message: "DB_PASSWORD is not set"}, true
}

func checkSSLMode(s Settings) (Finding, bool) {
	if s.SSLMode != "disable" {
		return Finding{}, false
	}
	return Finding{Check: "database_sslmode", Severity: SeverityWarning,
		Message: "database connections are unencrypted (sslmode=disable)"}, true
}

func checkForceHTTPS(s Settings) (Finding, bool) {
	if s.ForceHTTPS {
		return Finding{}, false
	}
	return Finding{Check: "force_https", Severity: SeverityWarning,
		Message: "FORCE_HTTPS is off; TLS must be terminated and enforced upstream"}, true
}
