package render

import (
	"math"
	"math/big"

	mandel "github.com/marben/mandel_explorer"
)

// Escape radius 4, compared squared. Larger than the usual 2 on purpose: the
// smoothing constants below are tuned for it.
const bailout = 16

// smoothing of the escape count: log10(log10(|z|²)) / -log10(2) + offset
const (
	log10Of2     = 0.30102999566
	smoothOffset = 0.267979154355
)

// PreciseThreshold is the frame width below which float64 pixel coordinates
// start to visibly band, and rendering switches to big.Float arithmetic.
const PreciseThreshold = 5e-10

// Precision is the numeric strategy of a task.
type Precision int

const (
	Fast    Precision = iota // float64
	Precise                  // big.Float at mandel.FloatPrec bits
)

func (p Precision) String() string {
	switch p {
	case Fast:
		return "fast"
	case Precise:
		return "precise"
	}
	return "unknown"
}

var preciseThreshold = big.NewFloat(PreciseThreshold)

// SelectPrecision picks the strategy for rendering frame f.
func SelectPrecision(f mandel.Frame) Precision {
	if f.IsZero() {
		return Fast
	}
	w := new(big.Float).Abs(f.Width)
	if w.Cmp(preciseThreshold) < 0 {
		return Precise
	}
	return Fast
}

// Escape iterates z = z² + c for c = cx + cy·i from z = 0.
// It returns the smoothed iteration count at which |z| exceeded 4, or
// mandel.Interior if it did not within maxIteration iterations.
func Escape(cx, cy float64, maxIteration int) float64 {
	// rsq = Re(z)², isq = Im(z)², zsq = (Re(z)+Im(z))²
	var rsq, isq, zsq float64
	n := 0
	for rsq+isq <= bailout && n < maxIteration {
		x1 := rsq - isq + cx
		y1 := zsq - rsq - isq + cy
		rsq = x1 * x1
		isq = y1 * y1
		zsq = (x1 + y1) * (x1 + y1)
		n++
	}
	if n < maxIteration {
		return smooth(n, rsq+isq)
	}
	return mandel.Interior
}

func smooth(n int, modSq float64) float64 {
	return float64(n) + math.Log10(math.Log10(modSq))/-log10Of2 + smoothOffset
}

// preciseEvaluator is Escape in big.Float arithmetic.
// Its scratch values are reused between calls; it is not safe for concurrent use.
type preciseEvaluator struct {
	rsq, isq, zsq *big.Float
	x1, y1, t     *big.Float
	bailout       *big.Float
}

func newPreciseEvaluator() *preciseEvaluator {
	return &preciseEvaluator{
		rsq:     mandel.NewFloat(),
		isq:     mandel.NewFloat(),
		zsq:     mandel.NewFloat(),
		x1:      mandel.NewFloat(),
		y1:      mandel.NewFloat(),
		t:       mandel.NewFloat(),
		bailout: mandel.NewFloat().SetInt64(bailout),
	}
}

func (e *preciseEvaluator) escape(cx, cy *big.Float, maxIteration int) float64 {
	e.rsq.SetInt64(0)
	e.isq.SetInt64(0)
	e.zsq.SetInt64(0)

	n := 0
	for n < maxIteration {
		if e.t.Add(e.rsq, e.isq).Cmp(e.bailout) > 0 {
			break
		}

		e.x1.Sub(e.rsq, e.isq)
		e.x1.Add(e.x1, cx)

		e.y1.Sub(e.zsq, e.rsq)
		e.y1.Sub(e.y1, e.isq)
		e.y1.Add(e.y1, cy)

		e.rsq.Mul(e.x1, e.x1)
		e.isq.Mul(e.y1, e.y1)
		e.t.Add(e.x1, e.y1)
		e.zsq.Mul(e.t, e.t)
		n++
	}

	if n < maxIteration {
		modSq, _ := e.t.Add(e.rsq, e.isq).Float64()
		return smooth(n, modSq)
	}
	return mandel.Interior
}
