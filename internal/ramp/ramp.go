// Package ramp provides 256-entry colour ramps for the heat-map.
package ramp

import (
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Size is the number of entries in every ramp.
const Size = 256

// Default is the ramp used when none is configured.
const Default = "viridis"

// Ramp maps a score in [0,1] to a colour. Entry 0 is always black so that
// "no checks at all" stands apart from "a few checks".
type Ramp struct {
	name  string
	table [Size]colorful.Color
}

var stops = map[string][]string{
	"viridis": {"#440154", "#482777", "#3f4a8a", "#31678e", "#26838f", "#1f9d8a", "#6cce5a", "#b6de2b", "#fee825"},
	"inferno": {"#000004", "#1b0c41", "#4a0c6b", "#781c6d", "#a52c60", "#cf4446", "#ed6925", "#fb9b06", "#f7d13d", "#fcffa4"},
	"heat":    {"#1a0000", "#7f0000", "#d7301f", "#fc8d59", "#fdcc8a", "#ffffe0"},
	"mono":    {"#202020", "#ffffff"},
}

var ramps = func() map[string]*Ramp {
	out := make(map[string]*Ramp, len(stops))
	for name, hexes := range stops {
		out[name] = build(name, hexes)
	}
	return out
}()

func build(name string, hexes []string) *Ramp {
	cs := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		cs[i] = c
	}
	r := &Ramp{name: name}
	segs := float64(len(cs) - 1)
	for i := 1; i < Size; i++ {
		pos := float64(i-1) / float64(Size-2) * segs
		j := int(math.Floor(pos))
		if j >= len(cs)-1 {
			j = len(cs) - 2
		}
		r.table[i] = cs[j].BlendLab(cs[j+1], pos-float64(j)).Clamped()
	}
	return r
}

// Named returns the ramp registered under name.
func Named(name string) (*Ramp, error) {
	r, ok := ramps[name]
	if !ok {
		return nil, errors.Errorf("unknown colour ramp %q (valid: %v)", name, Names())
	}
	return r, nil
}

// Names lists the available ramps in sorted order.
func Names() []string {
	names := make([]string, 0, len(ramps))
	for name := range ramps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the ramp's registered name.
func (r *Ramp) Name() string { return r.name }

// At returns entry i.
func (r *Ramp) At(i uint8) colorful.Color { return r.table[i] }

// Index maps a score to a table index, clamping to [0,1].
func Index(score float64) uint8 {
	switch {
	case math.IsNaN(score) || score <= 0:
		return 0
	case score >= 1:
		return Size - 1
	}
	return uint8(math.Round(score * (Size - 1)))
}

// Lookup returns the colour for a score.
func (r *Ramp) Lookup(score float64) colorful.Color { return r.table[Index(score)] }
