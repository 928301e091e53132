package bpf

import (
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/sys/unix"
)

// HookMode holds the XDP attach flags passed to the kernel.
type HookMode uint32

const (
	// ModeAuto lets the kernel pick the hook, preferring the driver.
	ModeAuto    HookMode = 0
	ModeGeneric HookMode = unix.XDP_FLAGS_SKB_MODE
	ModeDriver  HookMode = unix.XDP_FLAGS_DRV_MODE
	ModeOffload HookMode = unix.XDP_FLAGS_HW_MODE

	allowedFlags = unix.XDP_FLAGS_MODES | unix.XDP_FLAGS_UPDATE_IF_NOEXIST
)

// ParseHookMode turns a human readable mode into its flags.
func ParseHookMode(s string) (HookMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "generic", "skb":
		return ModeGeneric, nil
	case "driver", "native", "drv":
		return ModeDriver, nil
	case "offload", "hw":
		return ModeOffload, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidHookMode, s)
	}
}

// Validate rejects unknown flag bits and combinations naming more than one hook.
func (m HookMode) Validate() error {
	if uint32(m)&^allowedFlags != 0 {
		return fmt.Errorf("%w: unknown flags %#x", ErrInvalidHookMode, uint32(m)&^allowedFlags)
	}

	if bits.OnesCount32(uint32(m)&unix.XDP_FLAGS_MODES) > 1 {
		return fmt.Errorf("%w: more than one hook in %#x", ErrInvalidHookMode, uint32(m))
	}

	return nil
}

func (m HookMode) String() string {
	var name string

	switch HookMode(uint32(m) & unix.XDP_FLAGS_MODES) {
	case ModeAuto:
		name = "auto"
	case ModeGeneric:
		name = "generic"
	case ModeDriver:
		name = "driver"
	case ModeOffload:
		name = "offload"
	default:
		return fmt.Sprintf("HookMode(%#x)", uint32(m))
	}

	if uint32(m)&unix.XDP_FLAGS_UPDATE_IF_NOEXIST != 0 {
		name += "+noexist"
	}

	return name
}
