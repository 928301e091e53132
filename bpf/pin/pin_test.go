package pin_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpcount/bpf"
	"github.com/tcassar-diss/xdpcount/bpf/pin"
	"go.uber.org/zap"
)

type fakePinnable struct {
	content string
	err     error
}

func (f *fakePinnable) Pin(fileName string) error {
	if f.err != nil {
		return f.err
	}

	return os.WriteFile(fileName, []byte(f.content), 0o600)
}

func newManager(t *testing.T) (*pin.Manager, string) {
	t.Helper()

	base := filepath.Join(t.TempDir(), "xdp")

	return pin.NewManager(zap.NewNop().Sugar(), base, bpf.TableName), base
}

func TestManager_Path(t *testing.T) {
	m := pin.NewManager(zap.NewNop().Sugar(), "", "")

	p, err := m.Path("eth0")
	require.NoError(t, err)
	assert.Equal(t, "/sys/fs/bpf/xdp/eth0/xdpcount_map", p)

	for _, iface := range []string{"", ".", "..", "a/b", "../etc"} {
		_, err := m.Path(iface)
		assert.ErrorIs(t, err, bpf.ErrInvalidInterface, "interface %q", iface)
	}
}

func TestManager_Pin(t *testing.T) {
	m, base := newManager(t)

	p, err := m.Pin("eth0", &fakePinnable{content: "first"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "eth0", bpf.TableName), p)

	for _, dir := range []string{base, filepath.Join(base, "eth0")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}

	// a second pin replaces the stale one
	_, err = m.Pin("eth0", &fakePinnable{content: "second"})
	require.NoError(t, err)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestManager_PinErrors(t *testing.T) {
	t.Run("pin refused", func(t *testing.T) {
		m, _ := newManager(t)

		_, err := m.Pin("eth0", &fakePinnable{err: errors.New("not bpffs")})
		require.ErrorIs(t, err, bpf.ErrPin)
	})

	t.Run("base is a file", func(t *testing.T) {
		m, base := newManager(t)
		require.NoError(t, os.WriteFile(base, nil, 0o600))

		_, err := m.Pin("eth0", &fakePinnable{})
		require.ErrorIs(t, err, bpf.ErrDirectory)
	})

	t.Run("base parent missing", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "missing", "xdp")
		m := pin.NewManager(zap.NewNop().Sugar(), base, bpf.TableName)

		_, err := m.Pin("eth0", &fakePinnable{})
		require.ErrorIs(t, err, bpf.ErrDirectory)
	})

	t.Run("stale pin is a directory", func(t *testing.T) {
		m, base := newManager(t)
		stale := filepath.Join(base, "eth0", bpf.TableName)
		require.NoError(t, os.MkdirAll(filepath.Join(stale, "child"), 0o700))

		_, err := m.Pin("eth0", &fakePinnable{})
		require.ErrorIs(t, err, bpf.ErrUnpin)
	})

	t.Run("invalid interface", func(t *testing.T) {
		m, _ := newManager(t)

		_, err := m.Pin("../escape", &fakePinnable{})
		require.ErrorIs(t, err, bpf.ErrInvalidInterface)
	})
}

func TestManager_Unpin(t *testing.T) {
	m, _ := newManager(t)

	require.NoError(t, m.Unpin("eth0"), "missing pin is not an error")

	p, err := m.Pin("eth0", &fakePinnable{content: "x"})
	require.NoError(t, err)

	require.NoError(t, m.Unpin("eth0"))
	_, err = os.Stat(p)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManager_OpenPinnedMissing(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.OpenPinned("eth0")
	require.Error(t, err)
}
