package bpf

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cilium/ebpf"
)

// Table is the userspace view of the counter table.
//
// *ebpf.Map satisfies Table.
type Table interface {
	Lookup(key, valueOut any) error
	Pin(fileName string) error
}

// checkTable verifies that an object declares a counter table the Reader can
// interpret. Callers wrap its errors with ErrLoad.
func checkTable(spec *ebpf.CollectionSpec) error {
	m, ok := spec.Maps[TableName]
	if !ok {
		return fmt.Errorf("object has no %q table", TableName)
	}

	want := TableSpec()

	switch {
	case m.Type != want.Type:
		return fmt.Errorf("table %q is %s, want %s", TableName, m.Type, want.Type)
	case m.KeySize != want.KeySize || m.ValueSize != want.ValueSize:
		return fmt.Errorf(
			"table %q has key/value size %d/%d, want %d/%d",
			TableName, m.KeySize, m.ValueSize, want.KeySize, want.ValueSize,
		)
	case m.MaxEntries < NumCounters:
		return fmt.Errorf("table %q holds %d entries, need %d", TableName, m.MaxEntries, NumCounters)
	}

	return nil
}

// findProgram returns the name of the only XDP program in spec.
func findProgram(spec *ebpf.CollectionSpec) (string, error) {
	var names []string

	for name, p := range spec.Programs {
		if p.Type == ebpf.XDP {
			names = append(names, name)
		}
	}

	switch len(names) {
	case 0:
		return "", errors.New("object has no XDP program")
	case 1:
		return names[0], nil
	default:
		slices.Sort(names)
		return "", fmt.Errorf("object has %d XDP programs %v", len(names), names)
	}
}
