package frontend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/cilium/ebpf/rlimit"
	"github.com/tcassar-diss/xdpcount/api"
	"github.com/tcassar-diss/xdpcount/bpf/pin"
	"github.com/tcassar-diss/xdpcount/bpf/probe"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Run starts the daemon and blocks until ctx is cancelled. On the way out the
// probe is detached and unloaded.
func Run(ctx context.Context, logger *zap.SugaredLogger, cfg *Config) error {
	logger.Infoln("=== Launching xdpcountd ===")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	if os.Geteuid() != 0 {
		logger.Warnw("not running as root, loading and attaching will likely fail", "euid", os.Geteuid())
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		logger.Warnw("failed to remove memlock rlimit", "error", err)
	}

	ctrl := probe.NewController(logger, probe.NewKernel(logger), controllerCfg(logger, cfg))

	lis, closeFn, err := Listen(logger, cfg)
	if err != nil {
		_ = ctrl.Close()
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer closeFn()

	return Serve(ctx, logger, ctrl, cfg, lis)
}

func controllerCfg(logger *zap.SugaredLogger, cfg *Config) *probe.ControllerCfg {
	if !cfg.Pin {
		return &probe.ControllerCfg{}
	}

	return &probe.ControllerCfg{
		Pins: pin.NewManager(logger, cfg.PinBase, ""),
	}
}

// Serve brings the probe up as configured, then serves the control API on lis
// until ctx is cancelled or the server fails.
func Serve(ctx context.Context, logger *zap.SugaredLogger, ctrl *probe.Controller, cfg *Config, lis net.Listener) error {
	defer shutdown(logger, ctrl)

	if err := start(logger, ctrl, cfg); err != nil {
		_ = lis.Close()
		return fmt.Errorf("failed to start probe: %w", err)
	}

	srv := grpc.NewServer(api.ServerOptions(logger)...)
	api.RegisterControlServer(srv, api.NewServer(logger, ctrl))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Infow("serving control API", "address", lis.Addr().String())

		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("control API stopped: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Infow("server is shutting down")
		srv.GracefulStop()

		return nil
	})

	return eg.Wait()
}

// shutdown detaches and unloads the probe. Failures are logged.
func shutdown(logger *zap.SugaredLogger, ctrl *probe.Controller) {
	if err := ctrl.Detach(); err != nil {
		logger.Errorw("failed to detach program", "error", err)
	}

	if err := ctrl.Unload(); err != nil {
		logger.Errorw("failed to unload program", "error", err)
	}

	if err := ctrl.Close(); err != nil {
		logger.Warnw("failed to release program handles", "error", err)
	}
}
