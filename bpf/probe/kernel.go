package probe

import (
	"fmt"

	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// Handle is a classifier loaded into the kernel.
type Handle interface {
	// FD is the program descriptor handed to the kernel on attach.
	FD() int
	Table() bpf.Table
	Close() error
}

// Kernel is the set of kernel operations the Controller drives.
type Kernel interface {
	// Load loads the classifier at path, or the built-in one when path is empty.
	Load(path string) (Handle, error)
	InterfaceIndex(name string) (int, error)
	// SetXDP installs the program fd on the interface. A negative fd removes
	// whatever program is installed.
	SetXDP(ifindex, fd int, mode bpf.HookMode) error
}

type netlinkKernel struct {
	logger *zap.SugaredLogger
}

// NewKernel returns a Kernel which loads through cilium/ebpf and attaches
// through netlink. Programs attached this way stay attached after the process exits.
func NewKernel(logger *zap.SugaredLogger) Kernel {
	return &netlinkKernel{logger: logger}
}

func (k *netlinkKernel) Load(path string) (Handle, error) {
	var (
		objs *bpf.Objects
		err  error
	)

	if path == "" || path == bpf.BuiltinProgram {
		k.logger.Debugw("loading built-in classifier")
		objs, err = bpf.LoadBuiltin()
	} else {
		k.logger.Debugw("loading classifier object", "path", path)
		objs, err = bpf.LoadFile(path)
	}

	if err != nil {
		return nil, err
	}

	return objs, nil
}

func (k *netlinkKernel) InterfaceIndex(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, err
	}

	return link.Attrs().Index, nil
}

func (k *netlinkKernel) SetXDP(ifindex, fd int, mode bpf.HookMode) error {
	link, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return fmt.Errorf("failed to find link %d: %w", ifindex, err)
	}

	return netlink.LinkSetXdpFdWithFlags(link, fd, int(mode))
}
