package main

import (
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/keilerkonzept/harvestgraph/internal/heatmap"
)

const halfBlock = "▀"

var (
	overlayFg = colorful.Color{R: 1, G: 1, B: 1}
	overlayBg = colorful.Color{}
)

// painter turns a pixel frame into terminal text: two pixel rows per text
// row, the upper one as the foreground of a half block and the lower one
// as its background. The overlay replaces the start of the first text row.
type painter struct {
	profile termenv.Profile
}

func (p painter) sgr(fg, bg colorful.Color) string {
	f := p.profile.Color(fg.Clamped().Hex()).Sequence(false)
	b := p.profile.Color(bg.Clamped().Hex()).Sequence(true)
	switch {
	case f == "" && b == "":
		return ""
	case b == "":
		return termenv.CSI + f + "m"
	case f == "":
		return termenv.CSI + b + "m"
	}
	return termenv.CSI + f + ";" + b + "m"
}

func (p painter) reset() string {
	if p.profile == termenv.Ascii {
		return ""
	}
	return termenv.CSI + termenv.ResetSeq + "m"
}

// Paint returns (height+1)/2 lines of width cells each.
func (p painter) Paint(f *heatmap.Frame) string {
	if f.Width <= 0 || f.Height <= 0 {
		return ""
	}
	text := []rune(f.Overlay)
	if len(text) > f.Width-2 {
		text = text[:max(0, f.Width-2)]
	}

	var sb strings.Builder
	sb.Grow(f.Width * (f.Height + 1) / 2 * 24)
	for row := 0; row*2 < f.Height; row++ {
		if row > 0 {
			sb.WriteByte('\n')
		}
		prev := ""
		for x := 0; x < f.Width; x++ {
			if row == 0 && x >= 1 && x-1 < len(text) {
				if seq := p.sgr(overlayFg, overlayBg); seq != prev {
					sb.WriteString(seq)
					prev = seq
				}
				sb.WriteRune(text[x-1])
				continue
			}
			top := f.At(x, 2*row)
			bottom := overlayBg
			if 2*row+1 < f.Height {
				bottom = f.At(x, 2*row+1)
			}
			if seq := p.sgr(top, bottom); seq != prev {
				sb.WriteString(seq)
				prev = seq
			}
			sb.WriteString(halfBlock)
		}
		sb.WriteString(p.reset())
	}
	return sb.String()
}
