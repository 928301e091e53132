package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tcassar-diss/xdpcount/api"
	"github.com/tcassar-diss/xdpcount/bpf/pin"
	"github.com/tcassar-diss/xdpcount/frontend"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "xdpcountd",
		Usage: "XDP based network packet counter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "/etc/xdpcount/xdpcountd.toml",
				Usage:   "TOML configuration file; flags take precedence",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"v"},
				Usage:   "activate debug logging",
			},
			&cli.StringFlag{
				Name:    "load",
				Aliases: []string{"l"},
				Usage:   "program to load at start-up: \"builtin\" or the path to an ELF object",
			},
			&cli.StringFlag{
				Name:    "interface",
				Aliases: []string{"i"},
				Usage:   "interface to attach the program to",
			},
			&cli.StringFlag{
				Name:    "xdp-mode",
				Aliases: []string{"m"},
				Usage:   "hook to attach with: generic, driver, offload (default: let the kernel choose)",
			},
			&cli.UintFlag{
				Name:    "xdp-flags",
				Aliases: []string{"x"},
				Usage:   "raw XDP flags, combined with --xdp-mode",
			},
			&cli.StringFlag{
				Name:    "unix",
				Aliases: []string{"u"},
				Value:   api.Socket,
				Usage:   "listening unix socket",
			},
			&cli.BoolFlag{
				Name:    "systemd",
				Aliases: []string{"s"},
				Usage:   "use the socket passed by systemd socket activation",
			},
			&cli.StringFlag{
				Name:  "pin-base",
				Value: pin.DefaultBase,
				Usage: "bpffs directory the counter table is pinned under",
			},
			&cli.BoolFlag{
				Name:  "no-pin",
				Usage: "do not pin the counter table",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	cfg, err := frontend.LoadConfig(cCtx.String("config"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	applyFlags(cCtx, cfg)

	logger, err := frontend.NewLogger(cfg.Debug)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to get a logger: %v", err), 1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := frontend.Run(ctx, logger, cfg); err != nil {
		return cli.Exit(fmt.Sprintf("xdpcountd encountered an error it couldn't recover from: %v", err), 2)
	}

	return nil
}

// applyFlags overrides file values with the flags given on the command line.
func applyFlags(cCtx *cli.Context, cfg *frontend.Config) {
	if cCtx.IsSet("debug") {
		cfg.Debug = cCtx.Bool("debug")
	}

	if cCtx.IsSet("load") {
		cfg.Program = cCtx.String("load")
	}

	if cCtx.IsSet("interface") {
		cfg.Interface = cCtx.String("interface")
	}

	if cCtx.IsSet("xdp-mode") {
		cfg.Mode = cCtx.String("xdp-mode")
	}

	if cCtx.IsSet("xdp-flags") {
		cfg.Flags = uint32(cCtx.Uint("xdp-flags"))
	}

	if cCtx.IsSet("unix") {
		cfg.Socket = cCtx.String("unix")
	}

	if cCtx.IsSet("systemd") {
		cfg.Systemd = cCtx.Bool("systemd")
	}

	if cCtx.IsSet("pin-base") {
		cfg.PinBase = cCtx.String("pin-base")
	}

	if cCtx.IsSet("no-pin") {
		cfg.Pin = !cCtx.Bool("no-pin")
	}
}
