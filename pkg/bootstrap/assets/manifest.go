package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const manifestVersion = 1

// Manifest lists every materialized path with its sha256.
type Manifest struct {
	Version int               `json:"version"`
	Paths   map[string]string `json:"paths"`
}

// encodeManifest renders paths deterministically; encoding/json sorts map
// keys.
func encodeManifest(paths map[string]string) ([]byte, error) {
	data, err := json.MarshalIndent(Manifest{Version: manifestVersion, Paths: paths}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeManifest leaves an identical manifest untouched.
func (m *Materializer) writeManifest(paths map[string]string) error {
	data, err := encodeManifest(paths)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(m.cfg.StaticRoot, m.cfg.Manifest)
	if cur, err := afero.ReadFile(m.fs, path); err == nil && bytes.Equal(cur, data) {
		return nil
	}
	if err := writeAtomic(m.fs, path, data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest from the static root.
func (m *Materializer) ReadManifest() (*Manifest, error) {
	data, err := afero.ReadFile(m.fs, filepath.Join(m.cfg.StaticRoot, m.cfg.Manifest))
	if err != nil {
		return nil, err
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &man, nil
}
