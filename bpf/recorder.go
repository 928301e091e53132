package bpf

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SnapshotFunc takes one snapshot of every counter.
type SnapshotFunc func(ctx context.Context) (*Snapshot, error)

// SnapshotFunc adapts r for a Recorder.
func (r *Reader) SnapshotFunc() SnapshotFunc {
	return func(context.Context) (*Snapshot, error) {
		return r.Snapshot(), nil
	}
}

// Recorder writes snapshots to an output in CSV format, one row per snapshot
// preceded by a header naming the counters.
type Recorder struct {
	logger   *zap.SugaredLogger
	snapshot SnapshotFunc
	out      *csv.Writer
}

func NewRecorder(logger *zap.SugaredLogger, snapshot SnapshotFunc, out io.Writer) *Recorder {
	return &Recorder{
		logger:   logger,
		snapshot: snapshot,
		out:      csv.NewWriter(out),
	}
}

// Monitor records a snapshot every interval until ctx is done, or until count
// rows have been written when count is positive.
//
// Calls to Monitor are blocking.
func (r *Recorder) Monitor(ctx context.Context, interval time.Duration, count int) error {
	if err := r.write(append([]string{"time"}, Names()...)); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; count <= 0 || i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

		s, err := r.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to take snapshot: %w", err)
		}

		if err := r.write(row(s)); err != nil {
			return err
		}
	}

	r.logger.Debugw("recorder finished", "rows", count)

	return nil
}

func row(s *Snapshot) []string {
	rec := make([]string, 0, NumCounters+1)
	rec = append(rec, s.Time.UTC().Format(time.RFC3339Nano))

	for i := 0; i < NumCounters; i++ {
		var v uint64
		if i < len(s.Values) {
			v = s.Values[i]
		}

		rec = append(rec, strconv.FormatUint(v, 10))
	}

	return rec
}

func (r *Recorder) write(rec []string) error {
	if err := r.out.Write(rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	r.out.Flush()

	if err := r.out.Error(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}

	return nil
}
