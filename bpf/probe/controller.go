// Package probe drives the classifier through its lifecycle: loading it into
// the kernel, attaching it to an interface, detaching and unloading it.
package probe

import (
	"errors"
	"fmt"

	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/pin"
	"go.uber.org/zap"
)

// ControllerCfg configures the Controller.
// Pins will be used to publish the counter table after every successful attach
// (when it's not nil).
type ControllerCfg struct {
	Pins *pin.Manager // Pins can be nil where no pinning is wanted
}

// DefaultControllerCfg pins under pin.DefaultBase.
func DefaultControllerCfg(logger *zap.SugaredLogger) *ControllerCfg {
	return &ControllerCfg{
		Pins: pin.NewManager(logger, pin.DefaultBase, bpf.TableName),
	}
}

// State is the position of a Controller in the probe lifecycle.
type State int

const (
	Unloaded State = iota
	Loaded
	Attached
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Loaded:
		return "LOADED"
	case Attached:
		return "ATTACHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Controller holds the probe's state: whether a program is loaded, and where
// it is attached.
//
// The state moves UNLOADED -> LOADED -> ATTACHED and back. Loading while
// loaded replaces the program; the replaced handle stays open until Close.
// Controller is not safe for concurrent use.
type Controller struct {
	logger  *zap.SugaredLogger
	kernel  Kernel
	cfg     *ControllerCfg
	handle  Handle
	retired []Handle

	iface    string
	ifindex  int
	mode     bpf.HookMode
	attached bool
}

// NewController creates a Controller in the UNLOADED state.
func NewController(logger *zap.SugaredLogger, kernel Kernel, cfg *ControllerCfg) *Controller {
	if cfg == nil {
		cfg = DefaultControllerCfg(logger)
	}

	return &Controller{
		logger: logger,
		kernel: kernel,
		cfg:    cfg,
	}
}

// Load loads the classifier at path, or the built-in one when path is empty.
func (c *Controller) Load(path string) error {
	h, err := c.kernel.Load(path)
	if err != nil {
		if errors.Is(err, bpf.ErrLoad) {
			return err
		}

		return fmt.Errorf("%w: %w", bpf.ErrLoad, err)
	}

	if c.handle != nil {
		c.logger.Warnw("replacing loaded program", "attached", c.attached, "interface", c.iface)
		c.retired = append(c.retired, c.handle)
	}

	c.handle = h

	c.logger.Infow("loaded program", "path", displayPath(path), "fd", h.FD())

	return nil
}

// Attach installs the loaded program on iface. Attaching while attached does nothing.
func (c *Controller) Attach(iface string, mode bpf.HookMode) error {
	if c.handle == nil {
		return fmt.Errorf("%w: cannot attach, no program loaded", bpf.ErrPrecondition)
	}

	if c.attached {
		c.logger.Warnw("program already attached", "interface", c.iface, "requested", iface)
		return nil
	}

	return c.attach(iface, mode)
}

// LoadAndAttach loads the program at path and installs it on iface with mode.
// When the attach fails the new program stays loaded; an earlier attachment,
// if any, stays in place.
func (c *Controller) LoadAndAttach(path, iface string, mode bpf.HookMode) error {
	if err := c.Load(path); err != nil {
		return err
	}

	return c.attach(iface, mode)
}

func (c *Controller) attach(iface string, mode bpf.HookMode) error {
	ifindex, err := c.kernel.InterfaceIndex(iface)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", bpf.ErrInterfaceNotFound, iface, err)
	}

	if err := mode.Validate(); err != nil {
		return fmt.Errorf("%w: %w", bpf.ErrAttach, err)
	}

	if err := c.kernel.SetXDP(ifindex, c.handle.FD(), mode); err != nil {
		return fmt.Errorf("%w: %s (%s): %w", bpf.ErrAttach, iface, mode, err)
	}

	if c.attached && c.iface != iface {
		c.logger.Warnw("previous interface keeps its program", "interface", c.iface)
	}

	c.iface = iface
	c.ifindex = ifindex
	c.mode = mode
	c.attached = true

	c.logger.Infow("attached program", "interface", iface, "ifindex", ifindex, "mode", mode.String())

	if c.cfg.Pins == nil {
		return nil
	}

	if _, err := c.cfg.Pins.Pin(iface, c.handle.Table()); err != nil {
		return err
	}

	return nil
}

// Detach removes the program from its interface. Detaching while not attached
// does nothing.
func (c *Controller) Detach() error {
	if !c.attached {
		c.logger.Warnw("no program attached, nothing to detach")
		return nil
	}

	if err := c.kernel.SetXDP(c.ifindex, -1, c.mode); err != nil {
		return fmt.Errorf("%w: %s: %w", bpf.ErrDetach, c.iface, err)
	}

	c.logger.Infow("detached program", "interface", c.iface)

	c.iface = ""
	c.ifindex = 0
	c.mode = bpf.ModeAuto
	c.attached = false

	return nil
}

// Unload releases the loaded program. The program must be detached first.
// Unloading while unloaded does nothing.
func (c *Controller) Unload() error {
	if c.handle == nil {
		c.logger.Warnw("no program loaded, nothing to unload")
		return nil
	}

	if c.attached {
		return fmt.Errorf("%w: detach from %s before unloading", bpf.ErrPrecondition, c.iface)
	}

	if err := c.handle.Close(); err != nil {
		return fmt.Errorf("failed to unload program: %w", err)
	}

	c.handle = nil

	c.logger.Infow("unloaded program")

	return nil
}

func (c *Controller) State() State {
	switch {
	case c.attached:
		return Attached
	case c.handle != nil:
		return Loaded
	default:
		return Unloaded
	}
}

func (c *Controller) IsLoaded() bool {
	return c.handle != nil
}

func (c *Controller) IsAttached() bool {
	return c.attached
}

// Iface returns the interface the program is attached to.
func (c *Controller) Iface() (string, error) {
	if !c.attached {
		return "", bpf.ErrNotAttached
	}

	return c.iface, nil
}

// Flags returns the hook mode of the current attachment.
func (c *Controller) Flags() bpf.HookMode {
	return c.mode
}

// Counters returns a Reader over the most recently loaded program's table,
// which need not be the attached one after a failed LoadAndAttach.
func (c *Controller) Counters() (*bpf.Reader, error) {
	if c.handle == nil {
		return nil, fmt.Errorf("%w: no program loaded", bpf.ErrPrecondition)
	}

	return bpf.NewReader(c.logger, c.handle.Table()), nil
}

// Close releases every handle the Controller holds. Programs attached to an
// interface remain attached.
func (c *Controller) Close() error {
	errs := make([]error, 0, len(c.retired)+1)

	for _, h := range c.retired {
		errs = append(errs, h.Close())
	}
	c.retired = nil

	if c.handle != nil {
		errs = append(errs, c.handle.Close())
		c.handle = nil
	}

	return errors.Join(errs...)
}

func displayPath(path string) string {
	if path == "" {
		return bpf.BuiltinProgram
	}

	return path
}
