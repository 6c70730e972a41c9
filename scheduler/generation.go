package scheduler

import (
	"context"
	"image"
	"image/draw"
	"math"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/palette"
	"github.com/marben/mandel_explorer/render"
)

// generation is one attempt at rendering a request: a preview followed by
// refinement steps of halving pixel group. It is owned by the supervisor.
type generation struct {
	id      uint64
	req     mandel.Request
	palette palette.Palette

	ctx    context.Context
	cancel context.CancelCauseFunc

	// band widths derived from the preview, nil until it arrives
	fractions []float64

	step       int     // step being rendered or launched next, 0 is the preview
	pixelGroup float64 // pixel group of step
	running    bool

	tasks   []*render.Task
	bands   []*render.Result
	arrived int

	done bool
}

// groupSize is the pixel count of n full resolution pixels at pixel group pg.
func groupSize(n int, pg float64) int {
	return max(int(math.Round(float64(n)/pg)), 1)
}

func (g *generation) taskSpec(frame mandel.Frame, size image.Point, index, total int) render.TaskSpec {
	return render.TaskSpec{
		Frame:        frame,
		Size:         size,
		MaxIteration: g.req.MaxIteration,
		Palette:      g.palette,
		ColorShift:   g.req.ColorShift,
		Generation:   g.id,
		Step:         g.step,
		Index:        index,
		Total:        total,
	}
}

func (g *generation) previewTask() *render.Task {
	size := image.Pt(groupSize(g.req.Width, g.pixelGroup), groupSize(g.req.Height, g.pixelGroup))
	return render.NewTask(g.taskSpec(g.req.Frame, size, render.Preview, 1))
}

// bandTasks splits the frame into vertical bands by g.fractions.
// Band edges are rounded to whole columns from the cumulative fractions, so
// the bands tile the step's width without gaps and share one pixel size.
func (g *generation) bandTasks() []*render.Task {
	w := groupSize(g.req.Width, g.pixelGroup)
	h := groupSize(g.req.Height, g.pixelGroup)

	tasks := make([]*render.Task, len(g.fractions))
	cum, left := 0.0, 0
	for i, f := range g.fractions {
		cum += f
		right := int(math.Round(cum * float64(w)))
		if i == len(g.fractions)-1 {
			right = w
		}
		right = max(right, left)

		frame := g.req.Frame.Band(float64(left)/float64(w), float64(right-left)/float64(w))
		tasks[i] = render.NewTask(g.taskSpec(frame, image.Pt(right-left, h), i, len(g.fractions)))
		left = right
	}
	return tasks
}

// completion is the mean completion of the running step's tasks.
func (g *generation) completion() float64 {
	if g.done {
		return 1
	}
	if len(g.tasks) == 0 {
		return 0
	}
	var sum float64
	for _, t := range g.tasks {
		sum += t.Completion()
	}
	return sum / float64(len(g.tasks))
}

// stitch concatenates band images left to right in index order.
func stitch(bands []*render.Result) *image.RGBA {
	var w, h int
	for _, b := range bands {
		w += b.Image.Bounds().Dx()
		h = max(h, b.Image.Bounds().Dy())
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	x := 0
	for _, b := range bands {
		r := b.Image.Bounds()
		draw.Draw(
			img,
			image.Rect(x, 0, x+r.Dx(), r.Dy()), // destination rectangle
			b.Image,                            // source image
			r.Min,                              // source start
			draw.Src,
		)
		x += r.Dx()
	}
	return img
}
