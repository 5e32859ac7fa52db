package main

import (
	"fmt"
	"time"
)

// durationRing keeps the most recent n samples.
type durationRing struct {
	buf   []time.Duration
	idx   int
	count int
}

func newDurationRing(n int) *durationRing {
	if n < 1 {
		n = 1
	}
	return &durationRing{buf: make([]time.Duration, n)}
}

func (r *durationRing) add(d time.Duration) {
	r.buf[r.idx] = d
	r.idx = (r.idx + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

type durationStats struct {
	last time.Duration
	max  time.Duration
	avg  time.Duration
	n    int
}

func (r *durationRing) snapshot() durationStats {
	if r.count == 0 {
		return durationStats{}
	}
	var st durationStats
	var sum time.Duration
	for _, d := range r.buf[:r.count] {
		sum += d
		st.max = max(st.max, d)
	}
	st.last = r.buf[(r.idx+len(r.buf)-1)%len(r.buf)]
	st.avg = sum / time.Duration(r.count)
	st.n = r.count
	return st
}

func (s durationStats) String() string {
	if s.n == 0 {
		return "n/a"
	}
	return fmt.Sprintf("last %s  avg %s  max %s",
		formatMetricDuration(s.last), formatMetricDuration(s.avg), formatMetricDuration(s.max))
}

// loopMetrics times the two synchronous halves of each loop iteration.
// Everything runs on the event loop, so no locking.
type loopMetrics struct {
	drain  *durationRing
	render *durationRing
	frames int
}

func newLoopMetrics(window int) *loopMetrics {
	return &loopMetrics{
		drain:  newDurationRing(window),
		render: newDurationRing(window),
	}
}

func (m *loopMetrics) observeDrain(start time.Time) { m.drain.add(time.Since(start)) }

func (m *loopMetrics) observeRender(start time.Time) {
	m.render.add(time.Since(start))
	m.frames++
}

func formatMetricDuration(d time.Duration) string {
	if d <= 0 {
		return "0.000ms"
	}
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
