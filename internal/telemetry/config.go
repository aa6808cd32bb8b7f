package telemetry

import "time"

// Config configures tracing of one bootstrap run.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP/gRPC collector address, host:port.
	Endpoint string
	Insecure bool

	// SampleRate in [0, 1]. Runs are rare, so the default keeps all of them.
	SampleRate float64

	// BootID is attached to the resource, so every span of the run carries it.
	BootID string

	// FlushTimeout bounds Flush and shutdown. The entrypoint must not hang
	// on an unreachable collector before handing off.
	FlushTimeout time.Duration
}

// DefaultConfig returns tracing disabled with collector defaults filled in.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "julie-entrypoint",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
		FlushTimeout:   2 * time.Second,
	}
}
