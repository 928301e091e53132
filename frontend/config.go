package frontend

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
	"github.com/tcassar-diss/xdpcount/api"
	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/pin"
)

var ErrConfigInvalid = errors.New("invalid configuration")

// Config configures the daemon. It is read from TOML; flags override it.
type Config struct {
	// Program is loaded at start-up when set: bpf.BuiltinProgram or an ELF path.
	Program string `toml:"program"`
	// Interface the program is attached to at start-up. Requires Program.
	Interface string `toml:"interface"`
	Mode      string `toml:"mode"`
	// Flags are raw XDP flags, combined with Mode.
	Flags uint32 `toml:"flags"`

	Socket  string `toml:"socket"`
	Systemd bool   `toml:"systemd"`

	PinBase string `toml:"pin_base"`
	Pin     bool   `toml:"pin"`

	Debug bool `toml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Socket:  api.Socket,
		PinBase: pin.DefaultBase,
		Pin:     true,
	}
}

// LoadConfig reads the config at path over the defaults. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// HookMode combines Mode and Flags.
func (c *Config) HookMode() (bpf.HookMode, error) {
	mode, err := bpf.ParseHookMode(c.Mode)
	if err != nil {
		return 0, err
	}

	mode |= bpf.HookMode(c.Flags)

	if err := mode.Validate(); err != nil {
		return 0, err
	}

	return mode, nil
}

// ProgramPath is the path handed to the controller; empty selects the built-in classifier.
func (c *Config) ProgramPath() string {
	if c.Program == bpf.BuiltinProgram {
		return ""
	}

	return c.Program
}

func (c *Config) Validate() error {
	if _, err := c.HookMode(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	if !c.Systemd && c.Socket == "" {
		return fmt.Errorf("%w: a socket path is required without systemd activation", ErrConfigInvalid)
	}

	if c.Interface != "" && c.Program == "" {
		return fmt.Errorf("%w: interface %s given without a program to load", ErrConfigInvalid, c.Interface)
	}

	if c.Pin && c.PinBase == "" {
		return fmt.Errorf("%w: pinning needs a pin base", ErrConfigInvalid)
	}

	return nil
}
