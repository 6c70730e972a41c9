// Package palette synthesizes cyclic color palettes from a ring of control
// colors and maps smoothed iteration counts onto them.
//
// Between two control colors the palette follows a cubic Hermite spline per
// channel. Tangents are the mean of the neighbouring secant slopes, scaled so
// the interpolated segment has unit length, and are flattened at local extrema
// so the curve never overshoots its control colors.
package palette

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalid is returned for palette parameters that cannot produce a palette.
var ErrInvalid = errors.New("palette: invalid parameters")

// Palette is a cyclic sequence of colors.
type Palette []color.RGBA

// DefaultRing runs dark blue, blue, white, orange, black and back.
var DefaultRing = []color.RGBA{
	{R: 0, G: 7, B: 100, A: 255},
	{R: 32, G: 107, B: 203, A: 255},
	{R: 237, G: 255, B: 255, A: 255},
	{R: 255, G: 170, B: 0, A: 255},
	{R: 0, G: 2, B: 0, A: 255},
}

// DefaultWeights are the shares of the palette spent between consecutive DefaultRing colors.
var DefaultWeights = []float64{0.16, 0.26, 0.22, 0.22, 0.14}

// Default returns the count color palette of the default ring.
// count is clamped to at least 1.
func Default(count int) Palette {
	p, err := Generate(max(count, 1), DefaultRing, DefaultWeights)
	if err != nil {
		panic(err)
	}
	return p
}

// Generate returns a palette of count colors.
// Segment i runs from ring[i] to ring[i+1 mod len(ring)] and takes weights[i]
// of the palette. Weights are normalised by their sum.
func Generate(count int, ring []color.RGBA, weights []float64) (Palette, error) {
	switch {
	case count < 1:
		return nil, fmt.Errorf("%w: color count %d", ErrInvalid, count)
	case len(ring) < 2:
		return nil, fmt.Errorf("%w: %d control colors, need at least 2", ErrInvalid, len(ring))
	case len(ring) != len(weights):
		return nil, fmt.Errorf("%w: %d control colors but %d weights", ErrInvalid, len(ring), len(weights))
	}

	total := 0.0
	for i, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrInvalid, i, w)
		}
		total += w
	}

	n := len(ring)
	norm := make([]float64, n)
	for i, w := range weights {
		norm[i] = w / total
	}

	bounds := Boundaries(count, norm)
	p := make(Palette, count)

	cum := 0.0
	for i := range n {
		prev, next, after := (i-1+n)%n, (i+1)%n, (i+2)%n
		from := float64(count) * cum
		span := float64(count) * norm[i]

		for k := bounds[i]; k < bounds[i+1]; k++ {
			t := (float64(k) - from) / span
			p[k] = cubic(ring[prev], ring[i], ring[next], ring[after], norm[prev], norm[i], norm[next], t)
		}
		cum += norm[i]
	}

	return p, nil
}

// Boundaries returns the first palette index of every segment plus a final
// entry equal to count. Boundaries come from the cumulative weight sums, so
// they are monotonic and cover [0, count) without gaps or overlaps.
func Boundaries(count int, weights []float64) []int {
	total := 0.0
	for _, w := range weights {
		total += w
	}

	b := make([]int, len(weights)+1)
	cum := 0.0
	for i, w := range weights {
		if i == len(weights)-1 {
			b[i+1] = count
			break
		}
		cum += w

		// ceil, forgiving float noise right at an integer
		edge := int(math.Ceil(float64(count)*cum/total - 1e-9))
		b[i+1] = min(max(edge, b[i]), count)
	}
	return b
}

// ParseRing parses hex control colors ("#rrggbb").
func ParseRing(hex []string) ([]color.RGBA, error) {
	ring := make([]color.RGBA, 0, len(hex))
	for _, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("%w: control color %q: %w", ErrInvalid, h, err)
		}
		r, g, b := c.RGB255()
		ring = append(ring, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return ring, nil
}

// cubic interpolates between v0 and v1 at t in [0, 1]. ref0 precedes v0 and
// ref1 follows v1 on the ring; d0, d1, d2 are the lengths of the segments
// ref0-v0, v0-v1 and v1-ref1.
func cubic(ref0, v0, v1, ref1 color.RGBA, d0, d1, d2, t float64) color.RGBA {
	// rescale so the interpolated segment has length 1
	stretch := 1 / d1
	d0 *= stretch
	d2 *= stretch
	d1 = 1

	return color.RGBA{
		R: channel(ref0.R, v0.R, v1.R, ref1.R, d0, d1, d2, t),
		G: channel(ref0.G, v0.G, v1.G, ref1.G, d0, d1, d2, t),
		B: channel(ref0.B, v0.B, v1.B, ref1.B, d0, d1, d2, t),
		A: channel(ref0.A, v0.A, v1.A, ref1.A, d0, d1, d2, t),
	}
}

func channel(ref0, v0, v1, ref1 uint8, d0, d1, d2, t float64) uint8 {
	if v0 == v1 {
		return v0
	}
	a, b := float64(v0), float64(v1)
	tan0 := tangent(float64(ref0), a, b, d0, d1)
	tan1 := tangent(a, b, float64(ref1), d1, d2)
	return clamp(math.RoundToEven(hermite(a, b, tan0, tan1, t)))
}

// tangent at v1 between the segments v0-v1 (length d0) and v1-v2 (length d1).
// Zero at local extrema.
func tangent(v0, v1, v2, d0, d1 float64) float64 {
	if (v0 < v1 && v2 < v1) || (v0 > v1 && v2 > v1) {
		return 0
	}
	return ((v1-v0)/d0 + (v2-v1)/d1) / 2
}

func hermite(v0, v1, tan0, tan1, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return (2*t3-3*t2+1)*v0 + (t3-2*t2+t)*tan0 + (-2*t3+3*t2)*v1 + (t3-t2)*tan1
}

func clamp(v float64) uint8 {
	switch {
	case v > 255:
		return 255
	case v < 0:
		return 0
	}
	return uint8(v)
}
