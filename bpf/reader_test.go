package bpf_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpcount/bpf"
	"go.uber.org/zap"
)

var errInjected = errors.New("injected lookup failure")

type fakeTable struct {
	slots       map[uint32][]uint64
	fail        map[uint32]bool
	firstLookup time.Time
	lookups     []uint32
}

func (f *fakeTable) Lookup(key, valueOut any) error {
	k := *key.(*uint32)

	if f.firstLookup.IsZero() {
		f.firstLookup = time.Now()
	}
	f.lookups = append(f.lookups, k)

	if f.fail[k] {
		return errInjected
	}

	out := valueOut.(*[]uint64)
	*out = append([]uint64(nil), f.slots[k]...)

	return nil
}

func (f *fakeTable) Pin(string) error {
	return nil
}

func newReader(t *testing.T, table *fakeTable) *bpf.Reader {
	t.Helper()

	return bpf.NewReader(zap.NewNop().Sugar(), table)
}

func TestReader_Read(t *testing.T) {
	table := &fakeTable{
		slots: map[uint32][]uint64{
			uint32(bpf.Pkt): {3, 4, 0, 1},
			uint32(bpf.TCP): {0, 0, 7, 0},
		},
	}
	r := newReader(t, table)

	v, err := r.Read(bpf.Pkt)
	require.NoError(t, err)
	assert.EqualValues(t, 8, v)

	v, err = r.ReadByName("TCP")
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	v, err = r.Read(bpf.ARP)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestReader_ReadErrors(t *testing.T) {
	table := &fakeTable{fail: map[uint32]bool{uint32(bpf.UDP): true}}
	r := newReader(t, table)

	_, err := r.Read(bpf.UDP)
	require.ErrorIs(t, err, bpf.ErrLookup)
	require.ErrorIs(t, err, errInjected)

	_, err = r.Read(bpf.Counter(bpf.NumCounters))
	require.ErrorIs(t, err, bpf.ErrUnknownCounter)

	_, err = r.ReadByName("nope")
	require.ErrorIs(t, err, bpf.ErrUnknownCounter)

	// refused before touching the table
	assert.Equal(t, []uint32{uint32(bpf.UDP)}, table.lookups)
}

func TestReader_ReadAll(t *testing.T) {
	table := &fakeTable{
		slots: map[uint32][]uint64{
			uint32(bpf.Pkt): {10},
			uint32(bpf.IP):  {6, 2},
			uint32(bpf.ARP): {1},
			uint32(bpf.SYN): {5},
		},
		fail: map[uint32]bool{uint32(bpf.ARP): true},
	}
	r := newReader(t, table)

	buf := make([]uint64, bpf.NumCounters+2)
	for i := range buf {
		buf[i] = 99
	}

	require.NoError(t, r.ReadAll(buf))

	expected := make([]uint64, bpf.NumCounters)
	expected[bpf.Pkt] = 10
	expected[bpf.IP] = 8
	expected[bpf.SYN] = 5

	assert.Equal(t, expected, buf[:bpf.NumCounters])
	assert.Equal(t, []uint64{99, 99}, buf[bpf.NumCounters:])

	// every counter is read in table order, including after a failure
	order := make([]uint32, bpf.NumCounters)
	for i := range order {
		order[i] = uint32(i)
	}
	assert.Equal(t, order, table.lookups)

	err := r.ReadAll(make([]uint64, bpf.NumCounters-1))
	require.ErrorIs(t, err, bpf.ErrBufferTooSmall)

	_, err = r.ReadAllWithTimestamp(nil)
	require.ErrorIs(t, err, bpf.ErrBufferTooSmall)
}

func TestReader_ReadAllWithTimestamp(t *testing.T) {
	table := &fakeTable{slots: map[uint32][]uint64{uint32(bpf.UDP): {1, 1, 1}}}
	r := newReader(t, table)

	before := time.Now()
	buf := make([]uint64, bpf.NumCounters)

	ts, err := r.ReadAllWithTimestamp(buf)
	require.NoError(t, err)

	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(table.firstLookup))
	assert.EqualValues(t, 3, buf[bpf.UDP])
}

func TestReader_Snapshot(t *testing.T) {
	table := &fakeTable{
		slots: map[uint32][]uint64{
			uint32(bpf.Pkt): {2, 2},
			uint32(bpf.ACK): {1},
		},
	}
	r := newReader(t, table)

	s := r.Snapshot()
	require.Len(t, s.Values, bpf.NumCounters)
	assert.False(t, s.Time.After(table.firstLookup), "timestamp must precede the first read")

	named := s.Named()
	require.Len(t, named, bpf.NumCounters)
	assert.EqualValues(t, 4, named["PKT"])
	assert.EqualValues(t, 1, named["ACK"])
	assert.Zero(t, named["UDP"])
}
