package main

import (
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/keilerkonzept/topk/heap"
	"github.com/keilerkonzept/topk/sliding"

	"github.com/keilerkonzept/harvestgraph/internal/harvest"
)

const (
	mixK           = 4
	mixTick        = time.Minute
	mixWindow      = time.Hour
	mixFullRefresh = 10 * time.Second
)

// familyMix counts the tag token of every timestamped log line over a
// sliding window and keeps a ranked view of the busiest tags. Between full
// re-ranks only the counts of the current leaders are refreshed.
type familyMix struct {
	sketch      *sliding.Sketch
	k           int
	tick        time.Duration
	fullRefresh time.Duration

	lastTick        time.Time
	lastFullRefresh time.Time
	items           []heap.Item
}

func newFamilyMix(k int, window, tick, fullRefresh time.Duration) *familyMix {
	if k < 1 {
		k = 1
	}
	ticks := max(1, int(window/tick))
	return &familyMix{
		sketch: sliding.New(k, ticks,
			sliding.WithWidth(256),
			sliding.WithDepth(3),
		),
		k:           k,
		tick:        tick,
		fullRefresh: fullRefresh,
	}
}

// observe is the pipeline's per-line hook.
func (f *familyMix) observe(line []byte) {
	if tag, ok := harvest.Tag(line); ok {
		f.sketch.Incr(tag)
	}
}

// advance moves the sketch window forward to now in whole ticks.
func (f *familyMix) advance(now time.Time) {
	t := now.Truncate(f.tick)
	if f.lastTick.IsZero() {
		f.lastTick = t
		return
	}
	if n := int(t.Sub(f.lastTick) / f.tick); n > 0 {
		f.sketch.Ticks(n)
		f.lastTick = t
	}
}

// rank returns the current leaders, doing a full re-rank from the sketch
// when the last one is older than fullRefresh.
func (f *familyMix) rank(now time.Time) (items []heap.Item, didFull bool) {
	needFull := len(f.items) == 0 || f.fullRefresh <= 0 || now.Sub(f.lastFullRefresh) >= f.fullRefresh
	if needFull {
		f.items = f.sketch.SortedSlice()
		if len(f.items) > f.k {
			f.items = f.items[:f.k]
		}
		f.lastFullRefresh = now
		return cloneItems(f.items), true
	}
	for i := range f.items {
		f.items[i].Count = f.sketch.Count(f.items[i].Item)
	}
	sort.SliceStable(f.items, func(i, j int) bool {
		if f.items[i].Count != f.items[j].Count {
			return f.items[i].Count > f.items[j].Count
		}
		return f.items[i].Item < f.items[j].Item
	})
	return cloneItems(f.items), false
}

// legend formats ranked items as "tag count" pairs.
func legend(items []heap.Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Count == 0 {
			continue
		}
		parts = append(parts, it.Item+" "+humanize.Comma(int64(it.Count)))
	}
	return strings.Join(parts, "  ")
}

func cloneItems(in []heap.Item) []heap.Item {
	out := make([]heap.Item, len(in))
	copy(out, in)
	return out
}
