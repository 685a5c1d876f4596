// Package workspace manages the local scratch directory a run downloads into.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

const module = "workspace"

type Manager struct {
	root string
	keep []string
	log  logger.ILogger
}

// New returns a Manager rooted at root. keep lists the entry names ClearAll preserves.
func New(root string, keep []string, log logger.ILogger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{root: root, keep: keep, log: log}
}

func (m *Manager) Root() string { return m.root }

// Path joins elem onto the workspace root.
func (m *Manager) Path(elem ...string) string {
	return filepath.Join(append([]string{m.root}, elem...)...)
}

// Create makes the workspace root if it does not exist yet.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("create workspace %s: %w", m.root, err)
	}
	return nil
}

// Stage unpacks the zip archive into dest, preserving relative paths.
func (m *Manager) Stage(archive, dest string) (int, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return 0, fmt.Errorf("open archive %s: %w", archive, err)
		}
		return 0, fmt.Errorf("%w: %s: %v", core.ErrInvalidArchive, archive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	base, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	files := 0
	for _, f := range r.File {
		target := filepath.Join(base, filepath.FromSlash(f.Name))
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return files, fmt.Errorf("%w: entry %q escapes destination", core.ErrInvalidArchive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return files, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(f, target); err != nil {
			return files, err
		}
		files++
	}

	m.log.Info(module, "archive staged", map[string]interface{}{
		"archive": archive,
		"dest":    dest,
		"files":   files,
	})
	return files, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %q: %v", core.ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
			return fmt.Errorf("%w: entry %q: %v", core.ErrInvalidArchive, f.Name, err)
		}
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

// Clear removes every entry directly under dir whose name is not in exceptions.
// Each failure is logged and collected; all entries are attempted.
func (m *Manager) Clear(dir string, exceptions []string) (removed int, err error) {
	entries, rerr := os.ReadDir(dir)
	if rerr != nil {
		if errors.Is(rerr, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, rerr)
	}

	skip := make(map[string]struct{}, len(exceptions))
	for _, e := range exceptions {
		skip[e] = struct{}{}
	}

	for _, e := range entries {
		if _, ok := skip[e.Name()]; ok {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if rmErr := os.RemoveAll(p); rmErr != nil {
			m.log.Warn(module, "failed to delete entry", map[string]interface{}{
				"path":  p,
				"error": rmErr.Error(),
			})
			err = multierr.Append(err, fmt.Errorf("delete %s: %w", p, rmErr))
			continue
		}
		removed++
	}

	m.log.Info(module, "workspace cleared", map[string]interface{}{
		"dir":      dir,
		"removed":  removed,
		"failures": len(multierr.Errors(err)),
	})
	return removed, err
}

// ClearAll clears the workspace root, keeping the configured entries.
func (m *Manager) ClearAll() (int, error) {
	return m.Clear(m.root, m.keep)
}
