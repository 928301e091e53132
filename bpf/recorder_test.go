package bpf_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/xdpcount/bpf"
	"go.uber.org/zap"
)

func TestRecorder_Monitor(t *testing.T) {
	table := &fakeTable{slots: map[uint32][]uint64{uint32(bpf.Pkt): {1}}}
	r := newReader(t, table)

	var out bytes.Buffer
	rec := bpf.NewRecorder(zap.NewNop().Sugar(), r.SnapshotFunc(), &out)

	require.NoError(t, rec.Monitor(context.Background(), time.Millisecond, 3))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, append([]string{"time"}, bpf.Names()...), rows[0])

	for _, row := range rows[1:] {
		require.Len(t, row, bpf.NumCounters+1)

		_, err := time.Parse(time.RFC3339Nano, row[0])
		require.NoError(t, err)
		assert.Equal(t, "1", row[1+int(bpf.Pkt)])
		assert.Equal(t, "0", row[1+int(bpf.SYN)])
	}
}

func TestRecorder_StopsOnCancel(t *testing.T) {
	r := newReader(t, &fakeTable{})

	var out bytes.Buffer
	rec := bpf.NewRecorder(zap.NewNop().Sugar(), r.SnapshotFunc(), &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, rec.Monitor(ctx, time.Hour, 0))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2, "header and the first snapshot")
}

func TestRecorder_SnapshotError(t *testing.T) {
	failing := func(context.Context) (*bpf.Snapshot, error) {
		return nil, errInjected
	}

	rec := bpf.NewRecorder(zap.NewNop().Sugar(), failing, &bytes.Buffer{})

	err := rec.Monitor(context.Background(), time.Millisecond, 2)
	require.True(t, errors.Is(err, errInjected))
}
