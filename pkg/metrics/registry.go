// Package metrics holds the Prometheus registry of one bootstrap run and
// exports it as a node_exporter textfile.
//
// Metrics are off until InitRegistry is called. Constructors in this package
// return nil while disabled, and every consumer accepts a nil observer.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics with a fresh registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	return registry
}

// ResetRegistry disables metrics again. Used by tests.
func ResetRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}

// GetRegistry returns the active registry, or nil when disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// WriteTextfile writes every gathered metric to path in the text
// exposition format. The write is atomic, so node_exporter never reads a
// partial file. It is a no-op while metrics are disabled.
func WriteTextfile(path string) error {
	reg := GetRegistry()
	if reg == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
