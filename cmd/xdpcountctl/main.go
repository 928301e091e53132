package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tcassar-diss/xdpcount/api"
	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/pin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	socket   string
	timeout  time.Duration
	mode     string
	flags    uint
	pinBase  string
	interval time.Duration
	count    int
)

func main() {
	modeFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        "xdp-mode",
			Aliases:     []string{"m"},
			Usage:       "hook to attach with: generic, driver, offload",
			Destination: &mode,
		},
		&cli.UintFlag{
			Name:        "xdp-flags",
			Aliases:     []string{"x"},
			Usage:       "raw XDP flags, combined with --xdp-mode",
			Destination: &flags,
		},
	}

	app := &cli.App{
		Name:  "xdpcountctl",
		Usage: "control xdpcountd and read its counters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "unix",
				Aliases:     []string{"u"},
				Value:       api.Socket,
				Usage:       "daemon socket",
				Destination: &socket,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Value:       5 * time.Second,
				Usage:       "per call timeout",
				Destination: &timeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "ping",
				Usage: "check the daemon is reachable",
				Action: call(func(ctx context.Context, c *api.Client, _ *cli.Context) (any, error) {
					return map[string]bool{"ok": true}, c.Ping(ctx)
				}),
			},
			{
				Name:  "names",
				Usage: "list the counter names",
				Action: call(func(ctx context.Context, c *api.Client, _ *cli.Context) (any, error) {
					return c.CounterNames(ctx)
				}),
			},
			{
				Name:      "get",
				Usage:     "read one counter",
				ArgsUsage: "<id|name>",
				Action: call(func(ctx context.Context, c *api.Client, cCtx *cli.Context) (any, error) {
					arg, err := oneArg(cCtx.Args().Slice())
					if err != nil {
						return nil, err
					}

					var v uint64
					if id, byID := counterArg(arg); byID {
						v, err = c.Counter(ctx, id)
					} else {
						v, err = c.CounterByName(ctx, arg)
					}

					return map[string]uint64{arg: v}, err
				}),
			},
			{
				Name:  "snapshot",
				Usage: "read every counter",
				Action: call(func(ctx context.Context, c *api.Client, _ *cli.Context) (any, error) {
					return c.Snapshot(ctx)
				}),
			},
			{
				Name:      "load",
				Usage:     "load a program, the built-in one when no path is given",
				ArgsUsage: "[path]",
				Action: call(func(ctx context.Context, c *api.Client, cCtx *cli.Context) (any, error) {
					return nil, c.Load(ctx, cCtx.Args().First())
				}),
			},
			{
				Name:      "attach",
				Usage:     "attach the loaded program",
				ArgsUsage: "<interface>",
				Flags:     modeFlags,
				Action: call(func(ctx context.Context, c *api.Client, cCtx *cli.Context) (any, error) {
					iface, err := oneArg(cCtx.Args().Slice())
					if err != nil {
						return nil, err
					}

					m, err := hookMode(mode, flags)
					if err != nil {
						return nil, err
					}

					return nil, c.Attach(ctx, iface, m)
				}),
			},
			{
				Name:      "load-attach",
				Usage:     "load a program and attach it",
				ArgsUsage: "<interface> [path]",
				Flags:     modeFlags,
				Action: call(func(ctx context.Context, c *api.Client, cCtx *cli.Context) (any, error) {
					if cCtx.Args().Len() < 1 {
						return nil, fmt.Errorf("expected <interface> [path]")
					}

					m, err := hookMode(mode, flags)
					if err != nil {
						return nil, err
					}

					return nil, c.LoadAndAttach(ctx, cCtx.Args().Get(1), cCtx.Args().First(), m)
				}),
			},
			{
				Name:  "detach",
				Usage: "detach the program from its interface",
				Action: call(func(ctx context.Context, c *api.Client, _ *cli.Context) (any, error) {
					return nil, c.Detach(ctx)
				}),
			},
			{
				Name:  "unload",
				Usage: "unload the detached program",
				Action: call(func(ctx context.Context, c *api.Client, _ *cli.Context) (any, error) {
					return nil, c.Unload(ctx)
				}),
			},
			{
				Name:   "status",
				Usage:  "show whether a program is loaded and where it is attached",
				Action: call(status),
			},
			{
				Name:  "watch",
				Usage: "record snapshots as CSV on stdout",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:        "interval",
						Value:       time.Second,
						Usage:       "time between snapshots",
						Destination: &interval,
					},
					&cli.IntFlag{
						Name:        "count",
						Aliases:     []string{"n"},
						Usage:       "stop after this many snapshots; 0 runs until interrupted",
						Destination: &count,
					},
				},
				Action: watch,
			},
			{
				Name:      "dump",
				Usage:     "read the table pinned for an interface, without the daemon",
				ArgsUsage: "<interface>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "pin-base",
						Value:       pin.DefaultBase,
						Usage:       "bpffs directory tables are pinned under",
						Destination: &pinBase,
					},
				},
				Action: dump,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type action func(ctx context.Context, c *api.Client, cCtx *cli.Context) (any, error)

// call dials the daemon, runs fn and prints its result as JSON.
func call(fn action) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		c, err := api.Dial(socket)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cCtx.Context, timeout)
		defer cancel()

		out, err := fn(ctx, c, cCtx)
		if err != nil {
			return cli.Exit(err, 2)
		}

		if out == nil {
			out = map[string]bool{"ok": true}
		}

		return printJSON(out)
	}
}

func status(ctx context.Context, c *api.Client, _ *cli.Context) (any, error) {
	loaded, err := c.IsLoaded(ctx)
	if err != nil {
		return nil, err
	}

	attached, err := c.IsAttached(ctx)
	if err != nil {
		return nil, err
	}

	out := map[string]any{"loaded": loaded, "attached": attached}

	if attached {
		info, err := c.Interface(ctx)
		if err != nil {
			return nil, err
		}

		out["interface"] = info
	}

	return out, nil
}

func watch(cCtx *cli.Context) error {
	c, err := api.Dial(socket)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer c.Close()

	l, err := zap.NewProduction()
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to get zap production logger: %v", err), 1)
	}
	defer l.Sync()

	ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rec := bpf.NewRecorder(l.Sugar(), c.SnapshotFunc(), os.Stdout)
	if err := rec.Monitor(ctx, interval, count); err != nil {
		return cli.Exit(err, 2)
	}

	return nil
}

func dump(cCtx *cli.Context) error {
	iface, err := oneArg(cCtx.Args().Slice())
	if err != nil {
		return cli.Exit(err, 1)
	}

	l, err := zap.NewProduction()
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to get zap production logger: %v", err), 1)
	}
	defer l.Sync()

	logger := l.Sugar()

	table, err := pin.NewManager(logger, pinBase, bpf.TableName).OpenPinned(iface)
	if err != nil {
		return cli.Exit(err, 2)
	}
	defer table.Close()

	snap := bpf.NewReader(logger, table).Snapshot()

	return printJSON(&api.Snapshot{
		Sec:      snap.Time.Unix(),
		Nsec:     int64(snap.Time.Nanosecond()),
		Counters: snap.Named(),
	})
}

// hookMode combines a mode name with raw XDP flags.
func hookMode(name string, raw uint) (bpf.HookMode, error) {
	m, err := bpf.ParseHookMode(name)
	if err != nil {
		return 0, err
	}

	if raw > math.MaxUint32 {
		return 0, fmt.Errorf("%w: flags %#x", bpf.ErrInvalidHookMode, raw)
	}

	m |= bpf.HookMode(raw)

	if err := m.Validate(); err != nil {
		return 0, err
	}

	return m, nil
}

// counterArg reports whether arg is a numeric counter id. Anything else is
// looked up by name on the daemon.
func counterArg(arg string) (bpf.Counter, bool) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, false
	}

	return bpf.Counter(id), true
}

func oneArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected 1 argument, got %d", len(args))
	}

	return args[0], nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
