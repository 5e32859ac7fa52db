// Package heatmap turns the bucket window into a pixel frame: one column per
// bucket, newest bucket at the right edge, time running top to bottom
// within a column.
package heatmap

import (
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/keilerkonzept/harvestgraph/internal/ramp"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

// View is the read side of window.Store.
type View interface {
	Len() int
	Width() time.Duration
	Bucket(i int) window.Bucket
	Stats() window.Stats
}

// Options controls the colour math.
type Options struct {
	Ramp *ramp.Ramp
	// Rate is the nominal number of checks per second. A cell that sees
	// this many checks scores 1.
	Rate float64
	// Smoothing widens each cell's counting window by this fraction of its
	// own span, split evenly before and after.
	Smoothing float64
	// Band is the number of columns per alternating dimmed group.
	Band    int
	BandDim float64

	Blank  colorful.Color
	Proof  colorful.Color
	Border colorful.Color

	Grades Grades
}

// DefaultOptions returns the stock look: viridis, 6 checks per minute.
func DefaultOptions() Options {
	r, _ := ramp.Named(ramp.Default)
	return Options{
		Ramp:      r,
		Rate:      0.1,
		Smoothing: 1,
		Band:      4,
		BandDim:   0.8,
		Blank:     colorful.Color{R: 0.07, G: 0.07, B: 0.07},
		Proof:     colorful.Color{R: 1, G: 1, B: 1},
		Border:    colorful.Color{R: 0x30 / 255.0, G: 0x30 / 255.0, B: 0x30 / 255.0},
		Grades:    DefaultGrades(),
	}
}

// Frame is a rendered pixel buffer plus the status text the terminal
// backend draws over its first text row.
type Frame struct {
	Width, Height int
	Pix           []colorful.Color
	Overlay       string
}

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) colorful.Color { return f.Pix[y*f.Width+x] }

func (f *Frame) set(x, y int, c colorful.Color) { f.Pix[y*f.Width+x] = c }

// Columns returns how many buckets fit in a frame of the given width.
func Columns(width int) int { return max(0, width-2) }

// Rows returns how many sub-intervals each column is split into.
func Rows(height int) int { return max(0, height-2) }

// Render draws the window as seen at now into a width x height frame. The
// outermost pixel ring is a border; column x = width-2 shows the newest
// bucket and each column to its left is one bucket older.
func Render(v View, now time.Time, width, height int, opt Options) *Frame {
	f := &Frame{Width: width, Height: height, Pix: make([]colorful.Color, width*height)}
	if width <= 0 || height <= 0 {
		return f
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				f.set(x, y, opt.Border)
			}
		}
	}
	st := v.Stats()
	cols, rows := Columns(width), Rows(height)
	for col := 0; col < cols && col < v.Len(); col++ {
		i := v.Len() - 1 - col
		x := width - 2 - col
		for y := 0; y < rows; y++ {
			c := Cell(v, i, y, rows, now, st.Earliest, opt)
			f.set(x, y+1, dim(c, bandOf(v.Bucket(i), v.Width(), opt.Band), opt.BandDim))
		}
	}
	f.Overlay = Overlay(st, now, opt.Grades)
	return f
}

// Cell computes the colour of row y (of rows) in bucket i.
func Cell(v View, i, y, rows int, now, earliest time.Time, opt Options) colorful.Color {
	b := v.Bucket(i)
	s0, s1 := subInterval(b, y, rows)
	if earliest.IsZero() || s1 <= earliest.Unix() || s0 > now.Unix() {
		return opt.Blank
	}
	if b.Proofs > 0 {
		return opt.Proof
	}
	return opt.Ramp.Lookup(Score(v, i, s0, s1, opt))
}

// Score is the activity in [s0,s1) widened by the smoothing factor, as a
// fraction of the nominal rate, clamped to [0,1].
func Score(v View, i int, s0, s1 int64, opt Options) float64 {
	span := float64(s1 - s0)
	pad := int64(span * opt.Smoothing / 2)
	lo, hi := s0-pad, s1+pad
	expected := opt.Rate * float64(hi-lo)
	if expected <= 0 {
		return 0
	}
	count := 0
	for j := i; j >= 0; j-- {
		b := v.Bucket(j)
		if b.Hi.Unix() <= lo {
			break
		}
		count += countIn(b, lo, hi)
	}
	for j := i + 1; j < v.Len(); j++ {
		b := v.Bucket(j)
		if b.Lo.Unix() >= hi {
			break
		}
		count += countIn(b, lo, hi)
	}
	return min(1, float64(count)/expected)
}

func countIn(b window.Bucket, lo, hi int64) int {
	n := 0
	for _, r := range b.Records {
		if t := r.Unix(); t >= lo && t < hi {
			n++
		}
	}
	return n
}

func subInterval(b window.Bucket, y, rows int) (int64, int64) {
	lo, hi := b.Span()
	w := hi - lo
	return lo + w*int64(y)/int64(rows), lo + w*int64(y+1)/int64(rows)
}

// bandOf reports whether bucket b falls in an odd group of band buckets.
// Groups are aligned to absolute time so they scroll with the data.
func bandOf(b window.Bucket, width time.Duration, band int) bool {
	secs := int64(width / time.Second)
	if band <= 0 || secs <= 0 {
		return false
	}
	n := b.Lo.Unix() / secs / int64(band)
	return n%2 != 0
}

func dim(c colorful.Color, odd bool, factor float64) colorful.Color {
	if !odd {
		return c
	}
	return colorful.Color{R: c.R * factor, G: c.G * factor, B: c.B * factor}
}

// Unit is the smallest time step the frame can show: the span of one pixel
// row, never less than a second.
func Unit(bucket time.Duration, height int) time.Duration {
	rows := Rows(height)
	if rows == 0 {
		return bucket
	}
	return max(time.Second, bucket/time.Duration(rows))
}
