// Package bpf provides an interface for interacting with the kernelspace components
// of the xdpcount program.
//
// The classifier is an XDP program which counts every frame received on an
// interface and classifies it by protocol into a per-CPU counter table. The
// program is built in Go (see ClassifierSpec), but any ELF object following the
// same table contract can be loaded with LoadFile.
//
// Reader sums the per-CPU slots of the table into logical counter values.
//
// This package is intended as an interface to kernelspace, without containing the
// load/attach state machine (see bpf/probe) or pinning (see bpf/pin).
package bpf
