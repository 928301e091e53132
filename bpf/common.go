package bpf

import "errors"

var (
	ErrLoad              = errors.New("failed to load program")
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrAttach            = errors.New("failed to attach program")
	ErrDetach            = errors.New("failed to detach program")
	ErrPrecondition      = errors.New("invalid program state")
	ErrNotAttached       = errors.New("no program attached")
	ErrDirectory         = errors.New("failed to create pin directory")
	ErrUnpin             = errors.New("failed to remove stale pin")
	ErrPin               = errors.New("failed to pin counter table")
	ErrLookup            = errors.New("counter lookup failed")
	ErrUnknownCounter    = errors.New("unknown counter")
	ErrBufferTooSmall    = errors.New("counter buffer too small")
	ErrInvalidHookMode   = errors.New("invalid hook mode")
	ErrInvalidInterface  = errors.New("invalid interface name")
)

const (
	// TableName is the name of the counter table, both in ELF objects and on bpffs.
	TableName = "xdpcount_map"
	// ProgramName is the name given to the built-in classifier.
	ProgramName = "xdpcount"
	// BuiltinProgram selects the built-in classifier wherever a program path is expected.
	BuiltinProgram = "builtin"
	// MaxCounters is the number of entries in the counter table. Only the
	// first NumCounters are used.
	MaxCounters = 256
)
