package bpf

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reader turns the per-CPU slots of a counter table into logical counter values.
type Reader struct {
	logger *zap.SugaredLogger
	table  Table
}

// Snapshot is every counter value read in one pass.
type Snapshot struct {
	// Time is taken before the first counter is read.
	Time   time.Time
	Values []uint64
}

func NewReader(logger *zap.SugaredLogger, table Table) *Reader {
	return &Reader{
		logger: logger,
		table:  table,
	}
}

// Read returns the sum of every CPU's slot for counter id.
func (r *Reader) Read(id Counter) (uint64, error) {
	if !id.Valid() {
		return 0, fmt.Errorf("%w: id %d", ErrUnknownCounter, uint32(id))
	}

	key := uint32(id)

	var perCPU []uint64
	if err := r.table.Lookup(&key, &perCPU); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLookup, id, err)
	}

	var total uint64
	for _, v := range perCPU {
		total += v
	}

	return total, nil
}

// ReadByName reads the counter registered under name.
func (r *Reader) ReadByName(name string) (uint64, error) {
	id, err := Lookup(name)
	if err != nil {
		return 0, err
	}

	return r.Read(id)
}

// ReadAll fills buf with every counter value in table order. A counter which
// cannot be read is logged and reported as zero.
func (r *Reader) ReadAll(buf []uint64) error {
	if len(buf) < NumCounters {
		return fmt.Errorf("%w: have %d slots, need %d", ErrBufferTooSmall, len(buf), NumCounters)
	}

	for _, c := range Counters() {
		v, err := r.Read(c)
		if err != nil {
			r.logger.Warnw("failed to read counter", "counter", c.String(), "error", err)
			v = 0
		}

		buf[c] = v
	}

	return nil
}

// ReadAllWithTimestamp is ReadAll, returning the time taken just before the
// first counter is read.
func (r *Reader) ReadAllWithTimestamp(buf []uint64) (time.Time, error) {
	ts := time.Now()

	if err := r.ReadAll(buf); err != nil {
		return time.Time{}, err
	}

	return ts, nil
}

// Snapshot reads every counter.
func (r *Reader) Snapshot() *Snapshot {
	s := &Snapshot{Values: make([]uint64, NumCounters)}

	// only fails on short buffers
	s.Time, _ = r.ReadAllWithTimestamp(s.Values)

	return s
}

// Named maps counter names to their values.
func (s *Snapshot) Named() map[string]uint64 {
	named := make(map[string]uint64, len(s.Values))
	for i, v := range s.Values {
		if i < NumCounters {
			named[counterNames[i]] = v
		}
	}

	return named
}
