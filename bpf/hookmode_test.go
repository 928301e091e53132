package bpf_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcassar-diss/xdpcount/bpf"
)

func TestParseHookMode(t *testing.T) {
	tests := []struct {
		in       string
		expected bpf.HookMode
		err      error
	}{
		{in: "", expected: bpf.ModeAuto},
		{in: "auto", expected: bpf.ModeAuto},
		{in: "generic", expected: bpf.ModeGeneric},
		{in: "SKB", expected: bpf.ModeGeneric},
		{in: "driver", expected: bpf.ModeDriver},
		{in: "native", expected: bpf.ModeDriver},
		{in: " drv ", expected: bpf.ModeDriver},
		{in: "offload", expected: bpf.ModeOffload},
		{in: "hw", expected: bpf.ModeOffload},
		{in: "turbo", err: bpf.ErrInvalidHookMode},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := bpf.ParseHookMode(tt.in)

			if !errors.Is(err, tt.err) {
				t.Errorf("ParseHookMode(%q) err = %v, expected %v", tt.in, err, tt.err)
			}

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHookMode_Validate(t *testing.T) {
	tests := []struct {
		name string
		mode bpf.HookMode
		err  error
	}{
		{name: "auto", mode: bpf.ModeAuto},
		{name: "generic", mode: bpf.ModeGeneric},
		{name: "driver with noexist", mode: bpf.ModeDriver | 0x1},
		{name: "two hooks", mode: bpf.ModeGeneric | bpf.ModeDriver, err: bpf.ErrInvalidHookMode},
		{name: "unknown bit", mode: 0x100, err: bpf.ErrInvalidHookMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.mode.Validate(), tt.err)
		})
	}
}

func TestHookMode_String(t *testing.T) {
	assert.Equal(t, "generic", bpf.ModeGeneric.String())
	assert.Equal(t, "driver+noexist", (bpf.ModeDriver | 0x1).String())
	assert.Equal(t, "HookMode(0x6)", (bpf.ModeGeneric | bpf.ModeDriver).String())
}
