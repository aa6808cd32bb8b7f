// Package assets collects static files into the static root and writes the
// liveness marker the container health check looks for.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/juliehq/julie-entrypoint/internal/logger"
	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
)

// StageName is the name the driver and logs use for this stage.
const StageName = "assets"

// MarkerContent is written to the liveness marker.
const MarkerContent = "ok\n"

// ErrSourceMissing is returned when a configured source directory is absent.
var ErrSourceMissing = errors.New("asset source missing")

// Config locates sources and outputs. Manifest and Marker are relative to
// StaticRoot; an empty Manifest disables it.
type Config struct {
	Sources    []string
	StaticRoot string
	Manifest   string
	Marker     string
	Clear      bool
}

// Stats counts what one run did.
type Stats struct {
	Copied  int
	Skipped int
	Removed int
}

// Observer is told what a successful run did.
type Observer interface {
	AssetsMaterialized(copied, skipped, removed int)
}

// Materializer is the asset stage.
type Materializer struct {
	fs       afero.Fs
	cfg      Config
	observer Observer
}

// New creates a Materializer over fs. A nil fs uses the OS filesystem.
func New(fs afero.Fs, cfg Config) *Materializer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Materializer{fs: fs, cfg: cfg}
}

// SetObserver attaches an Observer.
func (m *Materializer) SetObserver(o Observer) { m.observer = o }

// Name implements bootstrap.Stage.
func (m *Materializer) Name() string { return StageName }

// Run implements bootstrap.Stage.
func (m *Materializer) Run(ctx context.Context) bootstrap.Result { return m.MaterializeAssets(ctx) }

// MaterializeAssets brings the static root in line with the sources, then
// writes the marker. Only a marker failure is soft.
func (m *Materializer) MaterializeAssets(ctx context.Context) bootstrap.Result {
	start := time.Now()

	stats, err := m.Sync(ctx)
	if err != nil {
		return bootstrap.HardFailure("static assets not materialized", err)
	}
	if m.observer != nil {
		m.observer.AssetsMaterialized(stats.Copied, stats.Skipped, stats.Removed)
	}
	logger.InfoCtx(ctx, "static assets materialized",
		logger.KeyPath, m.cfg.StaticRoot,
		logger.KeyCopied, stats.Copied,
		logger.KeySkipped, stats.Skipped,
		logger.KeyRemoved, stats.Removed,
		logger.DurationMs(start))

	if err := m.WriteMarker(); err != nil {
		return bootstrap.SoftFailure("liveness marker not written", err)
	}
	return bootstrap.Success()
}

// WriteMarker writes the liveness marker into the static root.
func (m *Materializer) WriteMarker() error {
	if m.cfg.Marker == "" {
		return nil
	}
	return writeAtomic(m.fs, filepath.Join(m.cfg.StaticRoot, m.cfg.Marker), []byte(MarkerContent))
}

// MarkerPresent reports whether the liveness marker exists.
func (m *Materializer) MarkerPresent() bool {
	if m.cfg.Marker == "" {
		return false
	}
	ok, err := afero.Exists(m.fs, filepath.Join(m.cfg.StaticRoot, m.cfg.Marker))
	return err == nil && ok
}

// Sync copies changed files and writes the manifest. Earlier sources win
// when two provide the same path. ctx is checked between files.
func (m *Materializer) Sync(ctx context.Context) (Stats, error) {
	var stats Stats

	files, err := m.collect(ctx)
	if err != nil {
		return stats, err
	}
	if err := m.fs.MkdirAll(m.cfg.StaticRoot, 0o755); err != nil {
		return stats, fmt.Errorf("create static root: %w", err)
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	digests := make(map[string]string, len(rels))
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sum, copied, err := m.syncFile(files[rel], filepath.Join(m.cfg.StaticRoot, rel))
		if err != nil {
			return stats, fmt.Errorf("%s: %w", rel, err)
		}
		digests[filepath.ToSlash(rel)] = sum
		if copied {
			stats.Copied++
		} else {
			stats.Skipped++
		}
	}

	if m.cfg.Clear {
		n, err := m.clearStale(ctx, files)
		stats.Removed = n
		if err != nil {
			return stats, err
		}
	}

	if m.cfg.Manifest != "" {
		if err := m.writeManifest(digests); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// collect maps static-root relative paths to their source file.
func (m *Materializer) collect(ctx context.Context) (map[string]string, error) {
	files := make(map[string]string)
	for _, src := range m.cfg.Sources {
		info, err := m.fs.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSourceMissing, src)
			}
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("asset source %s is not a directory", src)
		}

		err = afero.Walk(m.fs, src, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			if _, seen := files[rel]; !seen {
				files[rel] = path
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", src, err)
		}
	}
	return files, nil
}

// syncFile copies src to dst unless dst already has the same content.
func (m *Materializer) syncFile(src, dst string) (string, bool, error) {
	sum, err := digest(m.fs, src)
	if err != nil {
		return "", false, err
	}
	if cur, err := digest(m.fs, dst); err == nil && cur == sum {
		return sum, false, nil
	}

	data, err := afero.ReadFile(m.fs, src)
	if err != nil {
		return "", false, err
	}
	if err := m.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", false, err
	}
	if err := writeAtomic(m.fs, dst, data); err != nil {
		return "", false, err
	}
	return sum, true, nil
}

// clearStale removes files under the static root no source provides.
func (m *Materializer) clearStale(ctx context.Context, keep map[string]string) (int, error) {
	reserved := map[string]bool{m.cfg.Manifest: true, m.cfg.Marker: true}
	var stale []string

	err := afero.Walk(m.fs, m.cfg.StaticRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(m.cfg.StaticRoot, path)
		if err != nil {
			return err
		}
		if _, ok := keep[rel]; !ok && !reserved[rel] {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan static root: %w", err)
	}

	for i, path := range stale {
		if err := m.fs.Remove(path); err != nil {
			return i, fmt.Errorf("remove %s: %w", path, err)
		}
		logger.Debug("removed stale asset", logger.KeyPath, path)
	}
	return len(stale), nil
}

func digest(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place, so readers never see a partial file.
func writeAtomic(fs afero.Fs, path string, data []byte) error {
	tmp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(name)
		return err
	}
	if err := fs.Chmod(name, 0o644); err != nil {
		_ = fs.Remove(name)
		return err
	}
	if err := fs.Rename(name, path); err != nil {
		_ = fs.Remove(name)
		return err
	}
	return nil
}
