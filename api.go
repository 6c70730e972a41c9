package mandel

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Surface is a published render: the stitched image of one refinement step.
// A Surface is never modified after it is published.
type Surface struct {
	Image   *image.RGBA
	Request Request

	Generation uint64
	Step       int // 0 is the preview
	PixelGroup float64
	Fractions  []float64 // band widths used for the step, nil for the preview

	// Final is set on the last refinement step of a generation.
	Final bool
}

// Scaled returns the surface image resized to w x h.
// Coarse previews are scaled up bilinearly, supersampled steps are scaled down
// with Catmull-Rom to average out the extra samples.
func (s *Surface) Scaled(w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if s == nil || s.Image == nil {
		return dst
	}

	var scaler xdraw.Interpolator = xdraw.ApproxBiLinear
	if s.Image.Bounds().Dx() > w {
		scaler = xdraw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), s.Image, s.Image.Bounds(), xdraw.Src, nil)
	return dst
}

// SurfaceProvider publishes rendered surfaces and rendering progress.
type SurfaceProvider interface {
	// Surface returns the latest published surface or nil.
	Surface() *Surface

	// Completion is the completion fraction of the running refinement step.
	Completion() float64

	// Subscribe returns a channel receiving newly published surfaces.
	// Surfaces not yet received are replaced by newer ones.
	Subscribe() (<-chan *Surface, func())
}

// Viewport accepts changes of the rendered view.
// Any change abandons the render in progress.
type Viewport interface {
	Request() Request
	Update(func(Request) Request)
	Reset()
	Recompute()
}
