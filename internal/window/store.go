// Package window keeps a fixed number of equal-width time buckets covering
// the most recent stretch of check records.
//
// Buckets live in a ring so that advancing the window by one bucket is O(1)
// and never allocates: the record arena is sized once by New.
package window

import (
	"time"

	"github.com/pkg/errors"

	"github.com/keilerkonzept/harvestgraph/internal/harvest"
)

var (
	// ErrSlotOutOfRange means a record mapped outside the window after
	// advancing, which can only happen if time tracking is corrupted.
	ErrSlotOutOfRange = errors.New("window: destination bucket out of range")
	// ErrBucketFull means more records arrived in one bucket than the
	// configured capacity allows.
	ErrBucketFull = errors.New("window: bucket capacity exceeded")
)

// Outcome reports what Ingest did with a record.
type Outcome int

const (
	Accepted Outcome = iota
	DroppedTooOld
	RejectedInvalid
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case DroppedTooOld:
		return "dropped_too_old"
	case RejectedInvalid:
		return "rejected_invalid"
	}
	return "unknown"
}

// Config sizes a Store.
type Config struct {
	Width    time.Duration // bucket width, whole seconds
	Buckets  int
	Capacity int // records per bucket
}

type bucket struct {
	lo, hi   int64
	n        int
	eligible int
	proofs   int
}

// Stats are the window-independent aggregates used for the status line.
type Stats struct {
	Newest   time.Time
	Earliest time.Time
	Plots    int // harvest.UnknownPlots until a record reports one
	Checks   int // eligible checks contributing to Mean and Worst
	Mean     time.Duration
	Worst    time.Duration
	Accepted int
	Dropped  int
}

// Store is the sliding window. It is not safe for concurrent use.
type Store struct {
	width    int64
	capacity int
	buckets  []bucket
	arena    []harvest.Record
	head     int // ring index of the oldest bucket

	newest   int64
	earliest int64
	plots    int
	checks   int
	sum      time.Duration
	worst    time.Duration
	accepted int
	dropped  int
}

// New creates a store whose newest bucket ends at the first bucket boundary
// after now.
func New(cfg Config, now time.Time) (*Store, error) {
	width := int64(cfg.Width / time.Second)
	if width < 1 || cfg.Width%time.Second != 0 {
		return nil, errors.Errorf("window: bucket width %s must be a positive whole number of seconds", cfg.Width)
	}
	if cfg.Buckets < 1 {
		return nil, errors.Errorf("window: need at least one bucket, got %d", cfg.Buckets)
	}
	if cfg.Capacity < 1 {
		return nil, errors.Errorf("window: bucket capacity must be >= 1, got %d", cfg.Capacity)
	}
	s := &Store{
		width:    width,
		capacity: cfg.Capacity,
		buckets:  make([]bucket, cfg.Buckets),
		arena:    make([]harvest.Record, cfg.Buckets*cfg.Capacity),
		plots:    harvest.UnknownPlots,
	}
	hi := (floorDiv(now.Unix(), width) + 1) * width
	n := int64(cfg.Buckets)
	for i := range s.buckets {
		lo := hi - (n-int64(i))*width
		s.buckets[i] = bucket{lo: lo, hi: lo + width}
	}
	return s, nil
}

// Len returns the number of buckets.
func (s *Store) Len() int { return len(s.buckets) }

// Width returns the bucket width.
func (s *Store) Width() time.Duration { return time.Duration(s.width) * time.Second }

func (s *Store) slot(i int) int { return (s.head + i) % len(s.buckets) }

func (s *Store) first() *bucket { return &s.buckets[s.head] }

func (s *Store) last() *bucket { return &s.buckets[s.slot(len(s.buckets)-1)] }

// shift evicts the oldest bucket and reuses its slot as the new newest one.
func (s *Store) shift() {
	hi := s.last().hi
	s.buckets[s.head] = bucket{lo: hi, hi: hi + s.width}
	s.head = s.slot(1)
}

// advance shifts until t falls before the window's upper edge. Gaps longer
// than the whole window restart the ring at the right place instead of
// shifting once per missed bucket.
func (s *Store) advance(t int64) int {
	hi := s.last().hi
	if t < hi {
		return 0
	}
	missing := floorDiv(t-hi, s.width) + 1
	n := int64(len(s.buckets))
	if missing >= n {
		newHi := hi + missing*s.width
		for i := range s.buckets {
			lo := newHi - (n-int64(i))*s.width
			s.buckets[i] = bucket{lo: lo, hi: lo + s.width}
		}
		s.head = 0
		return int(missing)
	}
	for i := int64(0); i < missing; i++ {
		s.shift()
	}
	return int(missing)
}

// AdvanceTo moves the window forward so that now lies inside it. It returns
// the number of buckets shifted and is a no-op when now is already covered.
func (s *Store) AdvanceTo(now time.Time) int {
	return s.advance(now.Unix())
}

// Ingest places r into its bucket, advancing the window first if r is newer
// than its upper edge. Records on the lower edge are kept; anything strictly
// older is dropped. A non-nil error is always fatal for the caller.
func (s *Store) Ingest(r harvest.Record) (Outcome, error) {
	t := r.Unix()
	s.advance(t)
	if t < s.first().lo {
		s.dropped++
		return DroppedTooOld, nil
	}
	n := len(s.buckets)
	idx := n + int(floorDiv(t-s.last().hi, s.width))
	if idx < 0 || idx >= n {
		return RejectedInvalid, errors.Wrapf(ErrSlotOutOfRange, "stamp %d maps to bucket %d of %d", t, idx, n)
	}
	slot := s.slot(idx)
	b := &s.buckets[slot]
	if b.n >= s.capacity {
		return RejectedInvalid, errors.Wrapf(ErrBucketFull, "bucket [%d,%d) holds %d records", b.lo, b.hi, b.n)
	}
	s.arena[slot*s.capacity+b.n] = r
	b.n++
	b.eligible += r.Eligible
	b.proofs += r.Proofs

	if t > s.newest {
		s.newest = t
	}
	if s.earliest == 0 || t < s.earliest {
		s.earliest = t
	}
	if r.Plots != harvest.UnknownPlots {
		s.plots = r.Plots
	}
	if r.Eligible > 0 {
		s.checks++
		s.sum += r.Duration
		if r.Duration > s.worst {
			s.worst = r.Duration
		}
	}
	s.accepted++
	return Accepted, nil
}

// Newest returns the stamp of the newest accepted record, or the zero time.
func (s *Store) Newest() time.Time { return unixOrZero(s.newest) }

// Earliest returns the oldest stamp ever accepted, or the zero time.
func (s *Store) Earliest() time.Time { return unixOrZero(s.earliest) }

// Stats returns the global aggregates.
func (s *Store) Stats() Stats {
	st := Stats{
		Newest:   s.Newest(),
		Earliest: s.Earliest(),
		Plots:    s.plots,
		Checks:   s.checks,
		Worst:    s.worst,
		Accepted: s.accepted,
		Dropped:  s.dropped,
	}
	if s.checks > 0 {
		st.Mean = s.sum / time.Duration(s.checks)
	}
	return st
}

// Bucket is a read-only view of one bucket.
type Bucket struct {
	Lo, Hi   time.Time
	Eligible int
	Proofs   int
	Records  []harvest.Record
}

// Span returns the bucket bounds in seconds.
func (b Bucket) Span() (lo, hi int64) { return b.Lo.Unix(), b.Hi.Unix() }

// Bucket returns bucket i, counted from the oldest. Records alias the store's
// arena and are only valid until the next Ingest or AdvanceTo.
func (s *Store) Bucket(i int) Bucket {
	slot := s.slot(i)
	b := s.buckets[slot]
	off := slot * s.capacity
	return Bucket{
		Lo:       time.Unix(b.lo, 0),
		Hi:       time.Unix(b.hi, 0),
		Eligible: b.eligible,
		Proofs:   b.proofs,
		Records:  s.arena[off : off+b.n : off+b.n],
	}
}

// Snapshot returns every bucket, oldest first.
func (s *Store) Snapshot() []Bucket {
	out := make([]Bucket, len(s.buckets))
	for i := range out {
		out[i] = s.Bucket(i)
	}
	return out
}

func unixOrZero(t int64) time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(t, 0)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
