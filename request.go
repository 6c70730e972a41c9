package mandel

import "fmt"

// Parameter step sizes of the interactive controls.
const (
	MaxIterationStep = 200
	ColorCountStep   = 5
	ColorShiftStep   = 5
)

// DefaultFrame is the whole set, as shown on start.
func DefaultFrame() Frame {
	return NewFrame(-2.75, 1.125, 4, -2.25)
}

// Request is everything needed to render one viewport.
type Request struct {
	Frame        Frame
	MaxIteration int
	ColorCount   int
	ColorShift   int

	// Target size in pixels at full resolution.
	Width, Height int
}

// DefaultRequest is the start view at the given target size.
func DefaultRequest(width, height int) Request {
	return Request{
		Frame:        DefaultFrame(),
		MaxIteration: 1000,
		ColorCount:   500,
		ColorShift:   0,
		Width:        width,
		Height:       height,
	}
}

// ResetRequest is the view restored by a reset command.
func ResetRequest(width, height int) Request {
	r := DefaultRequest(width, height)
	r.MaxIteration = 600
	return r
}

// Normalize clamps the request into its valid domain: MaxIteration, ColorCount,
// Width and Height are at least 1, ColorShift lies in [0, ColorCount) and a
// missing frame is replaced by DefaultFrame.
func (r Request) Normalize() Request {
	if r.Frame.IsZero() {
		r.Frame = DefaultFrame()
	}
	r.MaxIteration = max(r.MaxIteration, 1)
	r.ColorCount = max(r.ColorCount, 1)
	r.Width = max(r.Width, 1)
	r.Height = max(r.Height, 1)
	r.ColorShift %= r.ColorCount
	if r.ColorShift < 0 {
		r.ColorShift += r.ColorCount
	}
	return r
}

// Equal reports whether both requests render the same image.
func (r Request) Equal(o Request) bool {
	return r.MaxIteration == o.MaxIteration &&
		r.ColorCount == o.ColorCount &&
		r.ColorShift == o.ColorShift &&
		r.Width == o.Width &&
		r.Height == o.Height &&
		r.Frame.Equal(o.Frame)
}

// StepMaxIteration raises (delta > 0) or lowers (delta < 0) the iteration limit
// by MaxIterationStep per unit. It never lowers the limit to or below MaxIterationStep.
func (r Request) StepMaxIteration(delta int) Request {
	for ; delta > 0; delta-- {
		r.MaxIteration += MaxIterationStep
	}
	for ; delta < 0 && r.MaxIteration > MaxIterationStep; delta++ {
		r.MaxIteration -= MaxIterationStep
	}
	return r
}

// StepColorCount grows or shrinks the palette by ColorCountStep per unit,
// never below ColorCountStep colors.
func (r Request) StepColorCount(delta int) Request {
	for ; delta > 0; delta-- {
		r.ColorCount += ColorCountStep
	}
	for ; delta < 0 && r.ColorCount > ColorCountStep; delta++ {
		r.ColorCount -= ColorCountStep
	}
	return r
}

// StepColorShift rotates the palette start by ColorShiftStep per unit, wrapping around.
func (r Request) StepColorShift(delta int) Request {
	r.ColorShift += delta * ColorShiftStep
	return r.Normalize()
}

func (r Request) String() string {
	return fmt.Sprintf("%s maxIt=%d colors=%d shift=%d size=%dx%d",
		r.Frame, r.MaxIteration, r.ColorCount, r.ColorShift, r.Width, r.Height)
}
