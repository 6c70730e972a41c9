package palette

import (
	"image/color"
	"math"

	mandel "github.com/marben/mandel_explorer"
)

// Black is the color of interior points.
var Black = color.RGBA{A: 255}

// Color maps a smoothed iteration count onto the palette.
// The integer part of mu plus shift selects a palette entry, the fractional
// part blends it linearly into the next one. Interior points are Black.
func (p Palette) Color(mu float64, shift int) color.RGBA {
	if mandel.IsInterior(mu) || math.IsNaN(mu) || len(p) == 0 {
		return Black
	}

	whole := math.Floor(mu)
	i := (int(whole) + shift) % len(p)
	if i < 0 {
		i += len(p)
	}
	return lerp(p[i], p[(i+1)%len(p)], mu-whole)
}

func lerp(c0, c1 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: lerpChannel(c0.R, c1.R, t),
		G: lerpChannel(c0.G, c1.G, t),
		B: lerpChannel(c0.B, c1.B, t),
		A: lerpChannel(c0.A, c1.A, t),
	}
}

func lerpChannel(a, b uint8, t float64) uint8 {
	v := float64(a) - (float64(a)-float64(b))*t
	return clamp(math.RoundToEven(v))
}
