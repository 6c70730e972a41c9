// Package render renders rectangular regions of the Mandelbrot set column by
// column, in float64 or big.Float precision.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/big"
	"sync/atomic"
	"time"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/palette"
)

// Preview is the task index of a generation's preview task: a single,
// low resolution task over the whole viewport whose column timings drive
// load balancing.
const Preview = -1

// ErrAborted is returned by Task.Run when its context was cancelled.
var ErrAborted = errors.New("render: task aborted")

// State of a Task.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// TaskSpec describes the region a task renders and where it belongs.
type TaskSpec struct {
	Frame        mandel.Frame
	Size         image.Point // output size in pixels
	MaxIteration int
	Palette      palette.Palette
	ColorShift   int

	Generation uint64
	Step       int
	Index      int // Preview, or the band index within the step
	Total      int // number of tasks in the step
}

// Result is the output of a completed task.
type Result struct {
	Image *image.RGBA
	Frame mandel.Frame

	Generation uint64
	Step       int
	Index      int
	Total      int

	// Timings holds the render time of every column. Preview tasks only.
	Timings []time.Duration
}

// Preview reports whether r comes from a preview task.
func (r *Result) Preview() bool { return r.Index == Preview }

// Task renders one region. It runs once.
//
// Completion and State may be called from any goroutine while Run is in progress.
type Task struct {
	spec      TaskSpec
	precision Precision

	state   atomic.Int32
	columns atomic.Int64 // finished columns
}

func NewTask(spec TaskSpec) *Task {
	spec.Size.X = max(spec.Size.X, 0)
	spec.Size.Y = max(spec.Size.Y, 0)
	return &Task{
		spec:      spec,
		precision: SelectPrecision(spec.Frame),
	}
}

func (t *Task) Spec() TaskSpec { return t.spec }

func (t *Task) Precision() Precision { return t.precision }

func (t *Task) IsPreview() bool { return t.spec.Index == Preview }

func (t *Task) State() State { return State(t.state.Load()) }

// Completion returns the fraction of finished columns, 0 before Run and 1
// only once the task completed.
func (t *Task) Completion() float64 {
	switch t.State() {
	case Idle:
		return 0
	case Completed:
		return 1
	}
	if t.spec.Size.X == 0 {
		return 0
	}
	return float64(t.columns.Load()) / float64(t.spec.Size.X)
}

// Run renders the region column by column, left to right, checking ctx after
// every column. It returns ErrAborted if ctx was cancelled before the last
// column was accepted; no partial image is ever returned.
func (t *Task) Run(ctx context.Context) (*Result, error) {
	if !t.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return nil, fmt.Errorf("render: task is %s", t.State())
	}

	if err := ctx.Err(); err != nil {
		return nil, t.abort(ctx)
	}

	w, h := t.spec.Size.X, t.spec.Size.Y
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	timings := make([]time.Duration, w)
	column := t.columnRenderer(img)

	for x := range w {
		start := time.Now()
		column(x)
		timings[x] = time.Since(start)

		if ctx.Err() != nil {
			return nil, t.abort(ctx)
		}
		t.columns.Add(1)
	}

	t.state.Store(int32(Completed))
	res := &Result{
		Image:      img,
		Frame:      t.spec.Frame,
		Generation: t.spec.Generation,
		Step:       t.spec.Step,
		Index:      t.spec.Index,
		Total:      t.spec.Total,
	}
	if t.IsPreview() {
		res.Timings = timings
	}
	return res, nil
}

func (t *Task) abort(ctx context.Context) error {
	t.state.Store(int32(Aborted))
	return fmt.Errorf("%w: generation %d index %d: %w", ErrAborted, t.spec.Generation, t.spec.Index, context.Cause(ctx))
}

// columnRenderer returns the function rendering column x into img,
// in the task's precision.
func (t *Task) columnRenderer(img *image.RGBA) func(x int) {
	if t.spec.Size.X == 0 || t.spec.Size.Y == 0 {
		return func(int) {}
	}
	if t.precision == Precise {
		return t.preciseColumns(img)
	}
	return t.fastColumns(img)
}

func (t *Task) fastColumns(img *image.RGBA) func(x int) {
	w, h := t.spec.Size.X, t.spec.Size.Y
	f := t.spec.Frame.Fast()
	pixelWidth := f.Width / float64(w)
	pixelHeight := f.Height / float64(h)

	return func(x int) {
		cx := f.X + float64(x)*pixelWidth
		for y := range h {
			mu := Escape(cx, f.Y+float64(y)*pixelHeight, t.spec.MaxIteration)
			img.SetRGBA(x, y, t.spec.Palette.Color(mu, t.spec.ColorShift))
		}
	}
}

func (t *Task) preciseColumns(img *image.RGBA) func(x int) {
	w, h := t.spec.Size.X, t.spec.Size.Y
	f := t.spec.Frame
	pixelWidth := mandel.NewFloat().Quo(f.Width, big.NewFloat(float64(w)))
	pixelHeight := mandel.NewFloat().Quo(f.Height, big.NewFloat(float64(h)))

	e := newPreciseEvaluator()
	cx, cy := mandel.NewFloat(), mandel.NewFloat()

	return func(x int) {
		cx.SetInt64(int64(x))
		cx.Mul(cx, pixelWidth)
		cx.Add(cx, f.X)
		for y := range h {
			cy.SetInt64(int64(y))
			cy.Mul(cy, pixelHeight)
			cy.Add(cy, f.Y)
			mu := e.escape(cx, cy, t.spec.MaxIteration)
			img.SetRGBA(x, y, t.spec.Palette.Color(mu, t.spec.ColorShift))
		}
	}
}
