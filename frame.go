package mandel

import (
	"fmt"
	"math/big"
)

// FloatPrec is the mantissa precision, in bits, of the high precision frame representation.
const FloatPrec = 128

// zoomStep is the scale factor of a single zoom in or out.
const zoomStep = "1.1"

// nudge divisors of the frame width for coarse and fine keyboard movement
const (
	nudgeCoarse = 200
	nudgeFine   = 100 * nudgeCoarse
)

// Frame is a rectangle of the complex plane.
// X, Y is the anchor (top-left corner when Height is negative), Width and Height
// its extent. The sign of Height encodes the vertical direction of the image rows.
//
// Frame values are immutable: all operations return a new Frame.
type Frame struct {
	X, Y          *big.Float
	Width, Height *big.Float
}

// FastFrame is the float64 view of a Frame.
type FastFrame struct {
	X, Y          float64
	Width, Height float64
}

// NewFloat returns a zero valued big.Float at FloatPrec precision.
func NewFloat() *big.Float {
	return new(big.Float).SetPrec(FloatPrec)
}

func fromFloat(v float64) *big.Float {
	return NewFloat().SetFloat64(v)
}

func NewFrame(x, y, width, height float64) Frame {
	return Frame{X: fromFloat(x), Y: fromFloat(y), Width: fromFloat(width), Height: fromFloat(height)}
}

// ParseFrame parses the four decimal strings of a frame at full precision.
func ParseFrame(x, y, width, height string) (Frame, error) {
	var f Frame
	for _, p := range []struct {
		dst **big.Float
		s   string
		n   string
	}{
		{&f.X, x, "x"},
		{&f.Y, y, "y"},
		{&f.Width, width, "width"},
		{&f.Height, height, "height"},
	} {
		v, _, err := big.ParseFloat(p.s, 10, FloatPrec, big.ToNearestEven)
		if err != nil {
			return Frame{}, fmt.Errorf("parse frame %s %q: %w", p.n, p.s, err)
		}
		*p.dst = v
	}
	return f, nil
}

// IsZero reports whether f is the zero Frame.
func (f Frame) IsZero() bool {
	return f.X == nil || f.Y == nil || f.Width == nil || f.Height == nil
}

func (f Frame) Fast() FastFrame {
	if f.IsZero() {
		return FastFrame{}
	}
	x, _ := f.X.Float64()
	y, _ := f.Y.Float64()
	w, _ := f.Width.Float64()
	h, _ := f.Height.Float64()
	return FastFrame{X: x, Y: y, Width: w, Height: h}
}

// Equal reports whether both frames describe the same rectangle.
func (f Frame) Equal(o Frame) bool {
	if f.IsZero() || o.IsZero() {
		return f.IsZero() == o.IsZero()
	}
	return f.X.Cmp(o.X) == 0 &&
		f.Y.Cmp(o.Y) == 0 &&
		f.Width.Cmp(o.Width) == 0 &&
		f.Height.Cmp(o.Height) == 0
}

// Band returns the vertical strip of f starting at the fractional horizontal
// offset and spanning fraction of its width.
func (f Frame) Band(offset, fraction float64) Frame {
	return Frame{
		X:      add(f.X, mul(f.Width, fromFloat(offset))),
		Y:      copyFloat(f.Y),
		Width:  mul(f.Width, fromFloat(fraction)),
		Height: copyFloat(f.Height),
	}
}

// ZoomAt zooms in (or out) by a single step, keeping the point at the
// fractional position (fx, fy) of the frame in place.
func (f Frame) ZoomAt(fx, fy float64, in bool) Frame {
	z, _, _ := big.ParseFloat(zoomStep, 10, FloatPrec, big.ToNearestEven)
	one := fromFloat(1)

	if in {
		// 1 - 1/z
		shift := sub(one, quo(one, z))
		return Frame{
			X:      add(f.X, mul(f.Width, mul(fromFloat(fx), shift))),
			Y:      add(f.Y, mul(f.Height, mul(fromFloat(fy), shift))),
			Width:  quo(f.Width, z),
			Height: quo(f.Height, z),
		}
	}

	// z - 1
	shift := sub(z, one)
	return Frame{
		X:      sub(f.X, mul(f.Width, mul(fromFloat(fx), shift))),
		Y:      sub(f.Y, mul(f.Height, mul(fromFloat(fy), shift))),
		Width:  mul(f.Width, z),
		Height: mul(f.Height, z),
	}
}

// Pan moves the frame by the fractions (fx, fy) of its own extent.
func (f Frame) Pan(fx, fy float64) Frame {
	return Frame{
		X:      add(f.X, mul(f.Width, fromFloat(fx))),
		Y:      add(f.Y, mul(f.Height, fromFloat(fy))),
		Width:  copyFloat(f.Width),
		Height: copyFloat(f.Height),
	}
}

// Nudge moves the frame by dx, dy keyboard steps. A step is 1/200 of the
// frame width in both directions, 1/20000 when fine. Positive dy moves up.
func (f Frame) Nudge(dx, dy int, fine bool) Frame {
	div := fromFloat(nudgeCoarse)
	if fine {
		div = fromFloat(nudgeFine)
	}
	step := quo(f.Width, div)
	return Frame{
		X:      add(f.X, mul(step, fromFloat(float64(dx)))),
		Y:      add(f.Y, mul(step, fromFloat(float64(dy)))),
		Width:  copyFloat(f.Width),
		Height: copyFloat(f.Height),
	}
}

func (f Frame) String() string {
	if f.IsZero() {
		return "Frame{}"
	}
	return fmt.Sprintf("Frame{x: %s, y: %s, w: %s, h: %s}",
		f.X.Text('g', -1), f.Y.Text('g', -1), f.Width.Text('g', -1), f.Height.Text('g', -1))
}

func copyFloat(x *big.Float) *big.Float { return NewFloat().Set(x) }
func add(x, y *big.Float) *big.Float    { return NewFloat().Add(x, y) }
func sub(x, y *big.Float) *big.Float    { return NewFloat().Sub(x, y) }
func mul(x, y *big.Float) *big.Float    { return NewFloat().Mul(x, y) }
func quo(x, y *big.Float) *big.Float    { return NewFloat().Quo(x, y) }
