package heatmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keilerkonzept/harvestgraph/internal/harvest"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

func TestGrades(t *testing.T) {
	g := DefaultGrades()
	assert.Equal(t, "fast", g.Mean(200*time.Millisecond))
	assert.Equal(t, "ok", g.Mean(2*time.Second))
	assert.Equal(t, "slow", g.Mean(5*time.Second))
	assert.Equal(t, "slow", g.Worst(12*time.Second))
	assert.Equal(t, "too-slow", g.Worst(30*time.Second))
}

func TestOverlay(t *testing.T) {
	g := DefaultGrades()
	assert.Equal(t, "plots: ?  mean: -  worst: -  no checks yet",
		Overlay(window.Stats{Plots: harvest.UnknownPlots}, now, g))

	st := window.Stats{
		Plots:  1234,
		Checks: 10,
		Mean:   1500 * time.Millisecond,
		Worst:  42 * time.Second,
		Newest: now.Add(-3 * time.Minute),
	}
	assert.Equal(t, "plots: 1,234  mean: ok (1.50s)  worst: too-slow (42.00s)  last check 3 minutes ago",
		Overlay(st, now, g))
}

func TestTriggerDue(t *testing.T) {
	var tr Trigger
	newest := now.Add(-time.Minute)
	unit := 90 * time.Second

	assert.True(t, tr.Due(newest, now, unit, 80, 40), "first call always redraws")
	assert.False(t, tr.Due(newest, now.Add(time.Second), unit, 80, 40))
	assert.True(t, tr.Due(newest.Add(time.Second), now.Add(time.Second), unit, 80, 40), "new record")
	assert.False(t, tr.Due(newest.Add(time.Second), now.Add(2*time.Second), unit, 80, 40))
	assert.True(t, tr.Due(newest.Add(time.Second), now.Add(2*time.Second), unit, 100, 40), "resize")
	assert.True(t, tr.Due(newest.Add(time.Second), now.Add(unit), unit, 100, 40), "new display unit")

	tr.Force()
	assert.True(t, tr.Due(newest.Add(time.Second), now.Add(unit), unit, 100, 40))
}

func TestTrace(t *testing.T) {
	s := newStore(t)
	ingest(t, s, harvest.Record{Stamp: at(11, 50, 0), Eligible: 3})
	ingest(t, s, harvest.Record{Stamp: at(12, 1, 0), Eligible: 2})
	ingest(t, s, harvest.Record{Stamp: at(12, 2, 0), Eligible: 2})

	checks, eligible := Trace(s, 3)
	assert.Equal(t, []float64{0, 1, 2}, checks)
	assert.Equal(t, []float64{0, 3, 4}, eligible)

	checks, _ = Trace(s, 100)
	assert.Len(t, checks, 8)
}
