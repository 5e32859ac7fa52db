package heatmap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/keilerkonzept/harvestgraph/internal/harvest"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

// Grades are the duration thresholds for the status line.
type Grades struct {
	Fast    time.Duration // below: fast
	OK      time.Duration // below: ok
	TooSlow time.Duration // worst at or above: too slow
}

// DefaultGrades follow the farming guidance: lookups should finish within
// five seconds and anything past thirty misses the signage point.
func DefaultGrades() Grades {
	return Grades{Fast: time.Second, OK: 5 * time.Second, TooSlow: 30 * time.Second}
}

// Mean grades an average lookup duration.
func (g Grades) Mean(d time.Duration) string {
	switch {
	case d < g.Fast:
		return "fast"
	case d < g.OK:
		return "ok"
	}
	return "slow"
}

// Worst grades the slowest lookup seen.
func (g Grades) Worst(d time.Duration) string {
	if d >= g.TooSlow {
		return "too-slow"
	}
	return g.Mean(d)
}

// Overlay is the one-line status text.
func Overlay(st window.Stats, now time.Time, g Grades) string {
	var parts []string
	if st.Plots == harvest.UnknownPlots {
		parts = append(parts, "plots: ?")
	} else {
		parts = append(parts, "plots: "+humanize.Comma(int64(st.Plots)))
	}
	if st.Checks > 0 {
		parts = append(parts,
			fmt.Sprintf("mean: %s (%.2fs)", g.Mean(st.Mean), st.Mean.Seconds()),
			fmt.Sprintf("worst: %s (%.2fs)", g.Worst(st.Worst), st.Worst.Seconds()))
	} else {
		parts = append(parts, "mean: -", "worst: -")
	}
	if st.Newest.IsZero() {
		parts = append(parts, "no checks yet")
	} else {
		parts = append(parts, "last check "+humanize.RelTime(st.Newest, now, "ago", "from now"))
	}
	return strings.Join(parts, "  ")
}
