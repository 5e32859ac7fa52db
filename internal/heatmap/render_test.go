package heatmap

import (
	"testing"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/harvestgraph/internal/harvest"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

// The store covers 10:15 to 12:15 in eight quarter-hour buckets.
var now = time.Date(2024, 1, 1, 12, 7, 30, 0, time.UTC)

func at(hh, mm, ss int) time.Time { return time.Date(2024, 1, 1, hh, mm, ss, 0, time.UTC) }

func newStore(t *testing.T) *window.Store {
	t.Helper()
	s, err := window.New(window.Config{Width: 15 * time.Minute, Buckets: 8, Capacity: 900}, now)
	require.NoError(t, err)
	return s
}

func ingest(t *testing.T, s *window.Store, r harvest.Record) {
	t.Helper()
	if r.Plots == 0 {
		r.Plots = harvest.UnknownPlots
	}
	out, err := s.Ingest(r)
	require.NoError(t, err)
	require.Equal(t, window.Accepted, out)
}

func testOptions() Options {
	opt := DefaultOptions()
	opt.Smoothing = 0
	opt.Band = 0
	return opt
}

func TestCellZeroActivityUsesRampBottom(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(10, 30, 0), Eligible: 1})
	opt := testOptions()
	for y := 0; y < 10; y++ {
		assert.Equal(t, opt.Ramp.At(0), Cell(s, 3, y, 10, now, s.Earliest(), opt), "row %d", y)
	}
}

func TestCellBeforeEarliestIsBlank(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(10, 30, 0), Eligible: 1})
	opt := testOptions()
	for y := 0; y < 10; y++ {
		assert.Equal(t, opt.Blank, Cell(s, 0, y, 10, now, s.Earliest(), opt), "row %d", y)
	}
}

func TestCellAfterNowIsBlank(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(12, 0, 10), Eligible: 1})
	opt := testOptions()
	assert.NotEqual(t, opt.Blank, Cell(s, 7, 0, 10, now, s.Earliest(), opt))
	assert.Equal(t, opt.Blank, Cell(s, 7, 6, 10, now, s.Earliest(), opt))
}

func TestCellWithoutDataIsBlank(t *testing.T) {
	s := newStore(t)
	opt := testOptions()
	assert.Equal(t, opt.Blank, Cell(s, 5, 0, 10, now, s.Earliest(), opt))
}

func TestCellProofOverridesScore(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(10, 30, 0), Eligible: 1})
	ingest(t, s, harvest.Record{Stamp: at(11, 35, 0), Eligible: 2, Proofs: 1})
	opt := testOptions()
	for y := 0; y < 10; y++ {
		assert.Equal(t, opt.Proof, Cell(s, 5, y, 10, now, s.Earliest(), opt), "row %d", y)
	}
}

func TestScore(t *testing.T) {
	s := newStore(t)
	// Row 0 of bucket 4 spans 11:15:00 to 11:16:30; nine checks are nominal.
	for _, sec := range []int{0, 30, 60} {
		ingest(t, s, harvest.Record{Stamp: at(11, 15, 0).Add(time.Duration(sec) * time.Second), Eligible: 1})
	}
	opt := testOptions()
	lo := at(11, 15, 0).Unix()
	assert.InDelta(t, 1.0/3, Score(s, 4, lo, lo+90, opt), 1e-9)

	opt.Smoothing = 1
	assert.InDelta(t, 3.0/18, Score(s, 4, lo, lo+90, opt), 1e-9, "widened window reaches into bucket 3")
}

func TestScoreWideSmoothingReachesDistantBuckets(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(10, 50, 0), Eligible: 1}) // bucket 2
	ingest(t, s, harvest.Record{Stamp: at(11, 40, 0), Eligible: 1}) // bucket 5
	ingest(t, s, harvest.Record{Stamp: at(11, 46, 0), Eligible: 1}) // bucket 6
	ingest(t, s, harvest.Record{Stamp: at(12, 5, 0), Eligible: 1})  // bucket 7, outside

	opt := testOptions()
	opt.Smoothing = 40 // half an hour either side of a 90s row
	lo := at(11, 15, 0).Unix()
	assert.InDelta(t, 3.0/369, Score(s, 4, lo, lo+90, opt), 1e-9)
}

func TestCellSaturates(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 450; i++ {
		ingest(t, s, harvest.Record{Stamp: at(11, 15, 0).Add(time.Duration(2*i) * time.Second), Eligible: 1})
	}
	opt := testOptions()
	assert.Equal(t, opt.Ramp.At(255), Cell(s, 4, 3, 10, now, s.Earliest(), opt))
}

func TestRenderLayout(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(10, 15, 0), Eligible: 1, Plots: 40, Duration: 300 * time.Millisecond})
	ingest(t, s, harvest.Record{Stamp: at(12, 0, 5), Eligible: 1, Proofs: 1, Duration: 700 * time.Millisecond})
	opt := testOptions()

	f := Render(s, now, 10, 12, opt)
	require.Len(t, f.Pix, 120)
	assert.Equal(t, opt.Border, f.At(0, 0))
	assert.Equal(t, opt.Border, f.At(9, 11))
	assert.Equal(t, opt.Border, f.At(9, 5))

	assert.Equal(t, opt.Proof, f.At(8, 1), "newest bucket sits at the right edge")
	assert.Equal(t, opt.Blank, f.At(8, 10), "future rows of the newest bucket are blank")
	assert.NotEqual(t, opt.Proof, f.At(1, 1), "oldest bucket sits at the left edge")
	assert.Contains(t, f.Overlay, "plots: 40")
	assert.Contains(t, f.Overlay, "mean: fast (0.50s)")
	assert.Contains(t, f.Overlay, "worst: fast (0.70s)")
}

func TestRenderBands(t *testing.T) {
	s := newStore(t)
	opt := testOptions()
	opt.Band = 4
	opt.Blank = colorful.Color{R: 1, G: 1, B: 1}

	// Without data every cell is blank, so only the banding shows. Groups
	// of four quarter-hours line up with wall-clock hours.
	f := Render(s, now, 10, 12, opt)
	dimmed := colorful.Color{R: 0.8, G: 0.8, B: 0.8}
	for x, want := range map[int]colorful.Color{
		1: opt.Blank, 2: opt.Blank, 3: opt.Blank, // 10:15 to 10:45
		4: dimmed, 5: dimmed, 6: dimmed, 7: dimmed, // 11:00 to 11:45
		8: opt.Blank, // 12:00
	} {
		assert.Equal(t, want, f.At(x, 1), "column %d", x)
	}
}

func TestRenderTinyFrame(t *testing.T) {
	s := newStore(t)
	f := Render(s, now, 0, 0, testOptions())
	assert.Empty(t, f.Pix)
	f = Render(s, now, 2, 2, testOptions())
	assert.Len(t, f.Pix, 4)
}

func TestUnit(t *testing.T) {
	assert.Equal(t, 90*time.Second, Unit(15*time.Minute, 12))
	assert.Equal(t, time.Second, Unit(15*time.Minute, 2000))
	assert.Equal(t, 15*time.Minute, Unit(15*time.Minute, 2))
}
