package frontend

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/coreos/go-systemd/v22/activation"
	"go.uber.org/zap"
)

var ErrSocketActivation = errors.New("unexpected systemd socket activation")

// Listen opens the control socket: the one systemd passed in, or a unix socket
// at cfg.Socket. The returned func removes the socket file.
func Listen(logger *zap.SugaredLogger, cfg *Config) (net.Listener, func(), error) {
	if cfg.Systemd {
		listeners, err := activation.Listeners()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot retrieve systemd listeners: %w", err)
		}

		if len(listeners) != 1 || listeners[0] == nil {
			return nil, nil, fmt.Errorf("%w: want 1 listening socket, got %d", ErrSocketActivation, len(listeners))
		}

		return listeners[0], func() {}, nil
	}

	if err := removeFileIfExists(cfg.Socket); err != nil {
		return nil, nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	lis, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", cfg.Socket, err)
	}

	closeFn := func() {
		if err := removeFileIfExists(cfg.Socket); err != nil {
			logger.Warnw("failed to remove socket", "path", cfg.Socket, "error", err)
		}
	}

	return lis, closeFn, nil
}

func removeFileIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
