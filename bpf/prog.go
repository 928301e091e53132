package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
)

// Objects holds a loaded classifier and the counter table it updates.
type Objects struct {
	Program  *ebpf.Program
	Counters *ebpf.Map
}

// LoadBuiltin loads the built-in classifier into the kernel.
func LoadBuiltin() (*Objects, error) {
	return LoadCollection(BuiltinProgram, ClassifierSpec())
}

// LoadFile loads the classifier from the ELF object at path.
//
// The object must contain exactly one XDP program and a table named TableName
// laid out as TableSpec describes.
func LoadFile(path string) (*Objects, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	return LoadCollection(path, spec)
}

// LoadCollection checks spec for a counter table and a single XDP program,
// then loads both. name identifies spec in errors.
func LoadCollection(name string, spec *ebpf.CollectionSpec) (*Objects, error) {
	if err := checkTable(spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, name, err)
	}

	progName, err := findProgram(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, name, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		var ve *ebpf.VerifierError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %s: verifier rejected program: %+v", ErrLoad, name, ve)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, name, err)
	}
	defer coll.Close()

	return &Objects{
		Program:  coll.DetachProgram(progName),
		Counters: coll.DetachMap(TableName),
	}, nil
}

// FD is the descriptor handed to the kernel when attaching.
func (o *Objects) FD() int {
	return o.Program.FD()
}

// Table returns the counter table.
func (o *Objects) Table() Table {
	return o.Counters
}

// Close releases the program and table descriptors. Attachments made through
// netlink keep their own reference and survive Close.
func (o *Objects) Close() error {
	return errors.Join(o.Program.Close(), o.Counters.Close())
}
