package mandel

import (
	"math"
	"math/big"
	"testing"
)

func approx(t *testing.T, name string, got *big.Float, want float64) {
	t.Helper()
	g, _ := got.Float64()
	if math.Abs(g-want) > 1e-12*math.Max(1, math.Abs(want)) {
		t.Errorf("%s = %v, want %v", name, g, want)
	}
}

func TestNewFramePrecision(t *testing.T) {
	f := NewFrame(1, 2, 3, 4)
	for _, v := range []*big.Float{f.X, f.Y, f.Width, f.Height} {
		if v.Prec() != FloatPrec {
			t.Errorf("precision = %d, want %d", v.Prec(), FloatPrec)
		}
	}
}

func TestFrameFast(t *testing.T) {
	got := DefaultFrame().Fast()
	want := FastFrame{X: -2.75, Y: 1.125, Width: 4, Height: -2.25}
	if got != want {
		t.Errorf("Fast() = %+v, want %+v", got, want)
	}
	if got := (Frame{}).Fast(); got != (FastFrame{}) {
		t.Errorf("zero Frame Fast() = %+v, want zero", got)
	}
}

func TestFrameEqual(t *testing.T) {
	a := NewFrame(-0.5, 0.25, 1, -1)
	if !a.Equal(NewFrame(-0.5, 0.25, 1, -1)) {
		t.Error("equal frames not Equal")
	}
	if a.Equal(NewFrame(-0.5, 0.25, 1, -0.5)) {
		t.Error("different frames Equal")
	}
	if a.Equal(Frame{}) || !(Frame{}).Equal(Frame{}) {
		t.Error("zero frame comparison wrong")
	}
}

func TestFrameBand(t *testing.T) {
	f := NewFrame(-2, 1, 4, -2)
	b := f.Band(0.25, 0.5)
	approx(t, "X", b.X, -1)
	approx(t, "Width", b.Width, 2)
	approx(t, "Y", b.Y, 1)
	approx(t, "Height", b.Height, -2)

	// bands are copies
	b.Y.SetInt64(7)
	approx(t, "original Y", f.Y, 1)
}

func TestFrameZoomAt(t *testing.T) {
	f := NewFrame(-2, 1, 4, -2)

	in := f.ZoomAt(0.5, 0.5, true)
	approx(t, "Width", in.Width, 4/1.1)
	approx(t, "Height", in.Height, -2/1.1)

	// the point under the anchor stays put
	cx := func(f Frame) float64 { ff := f.Fast(); return ff.X + 0.5*ff.Width }
	cy := func(f Frame) float64 { ff := f.Fast(); return ff.Y + 0.5*ff.Height }
	if math.Abs(cx(in)-cx(f)) > 1e-12 || math.Abs(cy(in)-cy(f)) > 1e-12 {
		t.Errorf("zoom moved the center: (%v, %v) -> (%v, %v)", cx(f), cy(f), cx(in), cy(in))
	}

	corner := f.ZoomAt(0, 0, true)
	approx(t, "corner X", corner.X, -2)
	approx(t, "corner Y", corner.Y, 1)

	back := f.ZoomAt(0.3, 0.8, true).ZoomAt(0.3, 0.8, false)
	approx(t, "round trip X", back.X, -2)
	approx(t, "round trip Y", back.Y, 1)
	approx(t, "round trip Width", back.Width, 4)
	approx(t, "round trip Height", back.Height, -2)
}

func TestFrameZoomDeep(t *testing.T) {
	// 400 zoom steps take the width below what float64 can offset from -0.74
	f := NewFrame(-0.75, 0.1, 0.01, -0.01)
	for range 400 {
		f = f.ZoomAt(0.5, 0.5, true)
	}
	w, _ := f.Width.Float64()
	if w <= 0 || w > 1e-17 {
		t.Fatalf("width after 400 steps = %v", w)
	}
	next := f.Band(0.5, 0.5)
	if next.X.Cmp(f.X) <= 0 {
		t.Error("band offset lost below float64 resolution")
	}
}

func TestFramePan(t *testing.T) {
	f := NewFrame(-2, 1, 4, -2).Pan(0.25, 0.5)
	approx(t, "X", f.X, -1)
	approx(t, "Y", f.Y, 0)
	approx(t, "Width", f.Width, 4)
}

func TestFrameNudge(t *testing.T) {
	f := NewFrame(0, 0, 4, -2)
	coarse := f.Nudge(2, 1, false)
	approx(t, "coarse X", coarse.X, 2*4.0/200)
	approx(t, "coarse Y", coarse.Y, 4.0/200)

	fine := f.Nudge(-1, 0, true)
	approx(t, "fine X", fine.X, -4.0/20000)
	approx(t, "fine Y", fine.Y, 0)
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame("-0.743643887037158704752191506114774", "0.1318259", "1e-30", "-5.625e-31")
	if err != nil {
		t.Fatal(err)
	}
	if f.X.Prec() != FloatPrec {
		t.Errorf("precision = %d, want %d", f.X.Prec(), FloatPrec)
	}
	if got := f.X.Text('g', 30); got != "-0.743643887037158704752191506115" {
		t.Errorf("X = %s, want 30 significant digits preserved", got)
	}

	if _, err := ParseFrame("1", "2", "three", "4"); err == nil {
		t.Error("ParseFrame with a bad width succeeded")
	}
}

func TestFrameString(t *testing.T) {
	if got, want := DefaultFrame().String(), "Frame{x: -2.75, y: 1.125, w: 4, h: -2.25}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
