// Package probetest provides an in-memory probe.Kernel for tests.
package probetest

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/probe"
)

var (
	ErrNoSuchInterface = errors.New("no such network interface")
	ErrNoSuchObject    = errors.New("no such object file")
)

// Table is a counter table held in memory. Pinning writes the table's ID to
// the pin path so tests can tell which table a pin refers to.
type Table struct {
	mu sync.Mutex

	ID     int
	Slots  map[uint32][]uint64
	Fail   map[uint32]error
	PinErr error
	Pins   []string
}

func NewTable(id int) *Table {
	return &Table{
		ID:    id,
		Slots: make(map[uint32][]uint64),
		Fail:  make(map[uint32]error),
	}
}

// Set stores one value per CPU for counter c.
func (t *Table) Set(c bpf.Counter, perCPU ...uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Slots[uint32(c)] = perCPU
}

func (t *Table) Lookup(key, valueOut any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k, ok := key.(*uint32)
	if !ok {
		return fmt.Errorf("unexpected key type %T", key)
	}

	out, ok := valueOut.(*[]uint64)
	if !ok {
		return fmt.Errorf("unexpected value type %T", valueOut)
	}

	if err := t.Fail[*k]; err != nil {
		return err
	}

	*out = append([]uint64(nil), t.Slots[*k]...)

	return nil
}

func (t *Table) Pin(fileName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.PinErr != nil {
		return t.PinErr
	}

	if err := os.WriteFile(fileName, []byte(fmt.Sprint(t.ID)), 0o600); err != nil {
		return err
	}

	t.Pins = append(t.Pins, fileName)

	return nil
}

// Handle is a loaded program. Its FD doubles as its ID.
type Handle struct {
	Path   string
	Closed bool

	fd    int
	table *Table
}

func (h *Handle) FD() int {
	return h.fd
}

func (h *Handle) Table() bpf.Table {
	return h.table
}

// Counters is the handle's table with its concrete type.
func (h *Handle) Counters() *Table {
	return h.table
}

func (h *Handle) Close() error {
	if h.Closed {
		return errors.New("handle closed twice")
	}

	h.Closed = true

	return nil
}

// Kernel records loads and attachments in memory.
type Kernel struct {
	// Interfaces maps interface names to indexes.
	Interfaces map[string]int
	// Objects lists the program paths which load successfully. The built-in
	// program always loads.
	Objects map[string]bool

	LoadErr   error
	AttachErr error
	DetachErr error

	// Attached maps interface indexes to the installed fd and mode.
	Attached map[int]Attachment
	Loaded   []*Handle

	nextFD int
}

type Attachment struct {
	FD   int
	Mode bpf.HookMode
}

var _ probe.Kernel = (*Kernel)(nil)

// NewKernel returns a Kernel with the given interfaces, numbered from 1.
func NewKernel(ifaces ...string) *Kernel {
	k := &Kernel{
		Interfaces: make(map[string]int),
		Objects:    make(map[string]bool),
		Attached:   make(map[int]Attachment),
		nextFD:     10,
	}

	for i, name := range ifaces {
		k.Interfaces[name] = i + 1
	}

	return k
}

func (k *Kernel) Load(path string) (probe.Handle, error) {
	if k.LoadErr != nil {
		return nil, k.LoadErr
	}

	if path != "" && path != bpf.BuiltinProgram && !k.Objects[path] {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchObject, path)
	}

	k.nextFD++
	h := &Handle{Path: path, fd: k.nextFD, table: NewTable(k.nextFD)}
	k.Loaded = append(k.Loaded, h)

	return h, nil
}

func (k *Kernel) InterfaceIndex(name string) (int, error) {
	idx, ok := k.Interfaces[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSuchInterface, name)
	}

	return idx, nil
}

func (k *Kernel) SetXDP(ifindex, fd int, mode bpf.HookMode) error {
	if fd < 0 {
		if k.DetachErr != nil {
			return k.DetachErr
		}

		delete(k.Attached, ifindex)

		return nil
	}

	if k.AttachErr != nil {
		return k.AttachErr
	}

	k.Attached[ifindex] = Attachment{FD: fd, Mode: mode}

	return nil
}

// Last returns the most recently loaded handle.
func (k *Kernel) Last() *Handle {
	if len(k.Loaded) == 0 {
		return nil
	}

	return k.Loaded[len(k.Loaded)-1]
}
