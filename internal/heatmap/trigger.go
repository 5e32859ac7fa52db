package heatmap

import "time"

// Trigger decides whether a new frame is needed: the newest record moved,
// wall-clock time entered a new display unit, or the frame size changed.
type Trigger struct {
	primed bool
	newest time.Time
	unit   int64
	w, h   int
}

// Due records the current state and reports whether it differs from the
// state at the previous redraw.
func (t *Trigger) Due(newest, now time.Time, unit time.Duration, w, h int) bool {
	step := int64(unit / time.Second)
	if step < 1 {
		step = 1
	}
	u := now.Unix() / step
	due := !t.primed || newest.After(t.newest) || u != t.unit || w != t.w || h != t.h
	t.primed, t.newest, t.unit, t.w, t.h = true, newest, u, w, h
	return due
}

// Force makes the next Due return true.
func (t *Trigger) Force() { t.primed = false }

// Trace returns per-column check and eligible counts for the newest cols
// buckets, oldest first, for the trace pane.
func Trace(v View, cols int) (checks, eligible []float64) {
	cols = min(cols, v.Len())
	checks = make([]float64, cols)
	eligible = make([]float64, cols)
	for k := 0; k < cols; k++ {
		b := v.Bucket(v.Len() - cols + k)
		checks[k] = float64(len(b.Records))
		eligible[k] = float64(b.Eligible)
	}
	return checks, eligible
}
