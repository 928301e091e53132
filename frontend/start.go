package frontend

import (
	"github.com/tcassar-diss/xdpcount/bpf/probe"
	"go.uber.org/zap"
)

// start loads the configured program, attaching it when an interface is given.
func start(logger *zap.SugaredLogger, ctrl *probe.Controller, cfg *Config) error {
	if cfg.Program == "" {
		logger.Infow("no program configured, waiting for control requests")
		return nil
	}

	if cfg.Interface == "" {
		return ctrl.Load(cfg.ProgramPath())
	}

	mode, err := cfg.HookMode()
	if err != nil {
		return err
	}

	return ctrl.LoadAndAttach(cfg.ProgramPath(), cfg.Interface, mode)
}
