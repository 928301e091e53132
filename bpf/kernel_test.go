package bpf_test

import (
	"os"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpcount/bpf"
	"go.uber.org/zap"
)

func loadBuiltin(t *testing.T) *bpf.Objects {
	t.Helper()

	if os.Geteuid() != 0 {
		t.Skip("loading XDP programs requires root")
	}

	require.NoError(t, rlimit.RemoveMemlock())

	objs, err := bpf.LoadBuiltin()
	require.NoError(t, err)
	t.Cleanup(func() { _ = objs.Close() })

	return objs
}

func TestLoadBuiltin_Run(t *testing.T) {
	objs := loadBuiltin(t)

	ack := tcpFrame(t, false, true)
	for i := 0; i < 10; i++ {
		ret, err := objs.Program.Run(&ebpf.RunOptions{Data: ack})
		require.NoError(t, err)
		require.EqualValues(t, bpf.XDPPass, ret)
	}

	// truncated inside the IPv4 header; frames shorter than an Ethernet
	// header are refused by the kernel test runner itself
	ret, err := objs.Program.Run(&ebpf.RunOptions{Data: ack[:20]})
	require.NoError(t, err)
	assert.EqualValues(t, bpf.XDPAborted, ret)

	r := bpf.NewReader(zap.NewNop().Sugar(), objs.Table())
	s := r.Snapshot().Named()

	assert.EqualValues(t, 11, s["PKT"])
	assert.EqualValues(t, 11, s["IP"])
	assert.EqualValues(t, 10, s["TCP"])
	assert.EqualValues(t, 10, s["ACK"])
	assert.Zero(t, s["SYN"])
	assert.Zero(t, s["UDP"])
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := bpf.LoadFile("/nonexistent/xdpcount.o")
	require.ErrorIs(t, err, bpf.ErrLoad)
}
