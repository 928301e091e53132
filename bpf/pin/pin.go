// Package pin publishes the counter table on bpffs so it outlives the daemon
// and can be read by other processes.
//
// Tables are pinned at <base>/<interface>/<name>.
package pin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/tcassar-diss/xdpcount/bpf"
	"go.uber.org/zap"
)

// DefaultBase is where tables are pinned unless configured otherwise.
const DefaultBase = "/sys/fs/bpf/xdp"

// Pinnable is anything which can be pinned to a path on bpffs.
type Pinnable interface {
	Pin(fileName string) error
}

type Manager struct {
	logger *zap.SugaredLogger
	base   string
	name   string
}

// NewManager creates a Manager pinning under base. An empty base selects
// DefaultBase and an empty name selects bpf.TableName.
func NewManager(logger *zap.SugaredLogger, base, name string) *Manager {
	if base == "" {
		base = DefaultBase
	}

	if name == "" {
		name = bpf.TableName
	}

	return &Manager{
		logger: logger,
		base:   base,
		name:   name,
	}
}

// Path returns where the table for iface is pinned.
func (m *Manager) Path(iface string) (string, error) {
	if iface == "" || iface == "." || iface == ".." || strings.ContainsRune(iface, '/') {
		return "", fmt.Errorf("%w: %q", bpf.ErrInvalidInterface, iface)
	}

	return filepath.Join(m.base, iface, m.name), nil
}

// Pin publishes obj as the table for iface, replacing any earlier pin.
func (m *Manager) Pin(iface string, obj Pinnable) (string, error) {
	path, err := m.Path(iface)
	if err != nil {
		return "", err
	}

	for _, dir := range []string{m.base, filepath.Dir(path)} {
		if err := m.ensureDir(dir); err != nil {
			return "", err
		}
	}

	if err := m.removeStale(path); err != nil {
		return "", err
	}

	if err := obj.Pin(path); err != nil {
		return "", fmt.Errorf("%w: %s: %w", bpf.ErrPin, path, err)
	}

	m.logger.Infow("pinned counter table", "interface", iface, "path", path)

	return path, nil
}

// Unpin removes the pin for iface. A missing pin is not an error.
func (m *Manager) Unpin(iface string) error {
	path, err := m.Path(iface)
	if err != nil {
		return err
	}

	return m.removeStale(path)
}

// OpenPinned opens the table pinned for iface.
func (m *Manager) OpenPinned(iface string) (*ebpf.Map, error) {
	path, err := m.Path(iface)
	if err != nil {
		return nil, err
	}

	table, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open pinned table %s: %w", path, err)
	}

	return table, nil
}

func (m *Manager) ensureDir(dir string) error {
	err := os.Mkdir(dir, 0o700)

	switch {
	case err == nil:
		m.logger.Debugw("created pin directory", "path", dir)
		return nil
	case errors.Is(err, fs.ErrExist):
		info, statErr := os.Stat(dir)
		if statErr != nil {
			return fmt.Errorf("%w: %s: %w", bpf.ErrDirectory, dir, statErr)
		}

		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists and is not a directory", bpf.ErrDirectory, dir)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s: %w", bpf.ErrDirectory, dir, err)
	}
}

func (m *Manager) removeStale(path string) error {
	err := os.Remove(path)

	switch {
	case err == nil:
		m.logger.Infow("removed stale pin", "path", path)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("%w: %s: %w", bpf.ErrUnpin, path, err)
	}
}
