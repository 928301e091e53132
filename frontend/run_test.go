package frontend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpcount/api"
	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/probe"
	"github.com/tcassar-diss/xdpcount/bpf/probe/probetest"
	"go.uber.org/zap"
)

func TestServe(t *testing.T) {
	logger := zap.NewNop().Sugar()

	cfg := DefaultConfig()
	cfg.Program = bpf.BuiltinProgram
	cfg.Interface = "eth0"
	cfg.Mode = "generic"
	cfg.Socket = filepath.Join(t.TempDir(), "xdpcount.sock")
	cfg.Pin = false
	require.NoError(t, cfg.Validate())

	k := probetest.NewKernel("eth0")
	ctrl := probe.NewController(logger, k, controllerCfg(logger, cfg))

	lis, closeFn, err := Listen(logger, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, logger, ctrl, cfg, lis) }()

	c, err := api.Dial(cfg.Socket)
	require.NoError(t, err)
	defer c.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()

	attached, err := c.IsAttached(callCtx)
	require.NoError(t, err)
	assert.True(t, attached)

	info, err := c.Interface(callCtx)
	require.NoError(t, err)
	assert.Equal(t, "eth0", info.Interface)
	assert.Equal(t, uint32(bpf.ModeGeneric), info.Flags)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	closeFn()

	// shutdown detaches and unloads
	assert.Empty(t, k.Attached)
	require.Len(t, k.Loaded, 1)
	assert.True(t, k.Loaded[0].Closed)
	assert.False(t, ctrl.IsLoaded())

	_, err = os.Stat(cfg.Socket)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServe_StartFailure(t *testing.T) {
	logger := zap.NewNop().Sugar()

	cfg := DefaultConfig()
	cfg.Program = bpf.BuiltinProgram
	cfg.Interface = "missing0"
	cfg.Socket = filepath.Join(t.TempDir(), "xdpcount.sock")
	cfg.Pin = false

	k := probetest.NewKernel("eth0")
	ctrl := probe.NewController(logger, k, controllerCfg(logger, cfg))

	lis, closeFn, err := Listen(logger, cfg)
	require.NoError(t, err)
	defer closeFn()

	err = Serve(context.Background(), logger, ctrl, cfg, lis)
	require.ErrorIs(t, err, bpf.ErrInterfaceNotFound)

	// the program loaded before the attach failed is released
	require.Len(t, k.Loaded, 1)
	assert.True(t, k.Loaded[0].Closed)
}

func TestStart_LoadOnly(t *testing.T) {
	logger := zap.NewNop().Sugar()
	k := probetest.NewKernel("eth0")
	ctrl := probe.NewController(logger, k, &probe.ControllerCfg{})
	defer ctrl.Close()

	cfg := DefaultConfig()
	require.NoError(t, start(logger, ctrl, cfg))
	assert.False(t, ctrl.IsLoaded())

	cfg.Program = bpf.BuiltinProgram
	require.NoError(t, start(logger, ctrl, cfg))
	assert.True(t, ctrl.IsLoaded())
	assert.False(t, ctrl.IsAttached())
	assert.Empty(t, k.Last().Path)
}

func TestListen_StaleSocket(t *testing.T) {
	logger := zap.NewNop().Sugar()

	cfg := DefaultConfig()
	cfg.Socket = filepath.Join(t.TempDir(), "xdpcount.sock")
	require.NoError(t, os.WriteFile(cfg.Socket, nil, 0o600))

	lis, closeFn, err := Listen(logger, cfg)
	require.NoError(t, err)

	require.NoError(t, lis.Close())
	closeFn()

	_, err = os.Stat(cfg.Socket)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
