// Package viewer is the JSON protocol between the explorer server and its
// browser viewers. Every websocket message carries one JSON value: a Command
// from the viewer, a Message from the server.
package viewer

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	mandel "github.com/marben/mandel_explorer"
)

// Op names a viewer command.
type Op string

const (
	OpZoom      Op = "zoom"
	OpPan       Op = "pan"
	OpNudge     Op = "nudge"
	OpMaxIt     Op = "maxit"
	OpColors    Op = "colors"
	OpShift     Op = "shift"
	OpReset     Op = "reset"
	OpRecompute Op = "recompute"
	OpLandmark  Op = "landmark"
	OpResize    Op = "resize" // display size of the viewer, the render size is unchanged
)

var (
	ErrUnknownOp       = errors.New("viewer: unknown op")
	ErrUnknownLandmark = errors.New("viewer: unknown landmark")
)

// Command is sent by the viewer. Only the fields of its Op are set.
type Command struct {
	Op Op `json:"op"`

	// zoom, pan: position in fractions of the view
	FX float64 `json:"fx,omitempty"`
	FY float64 `json:"fy,omitempty"`
	In bool    `json:"in,omitempty"`

	// nudge
	DX   int  `json:"dx,omitempty"`
	DY   int  `json:"dy,omitempty"`
	Fine bool `json:"fine,omitempty"`

	// maxit, colors, shift
	Delta int `json:"delta,omitempty"`

	Name string `json:"name,omitempty"` // landmark

	// resize
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Controller is what viewer commands act on.
type Controller interface {
	mandel.Viewport
	Pan(fx, fy float64)
	ZoomAt(fx, fy float64, in bool)
	Nudge(dx, dy int, fine bool)
}

// Apply executes c on ctl. OpResize concerns only the connection and is a no-op here.
func Apply(c Command, ctl Controller) error {
	switch c.Op {
	case OpZoom:
		ctl.ZoomAt(c.FX, c.FY, c.In)
	case OpPan:
		ctl.Pan(c.FX, c.FY)
	case OpNudge:
		ctl.Nudge(c.DX, c.DY, c.Fine)
	case OpMaxIt:
		ctl.Update(func(r mandel.Request) mandel.Request { return r.StepMaxIteration(c.Delta) })
	case OpColors:
		ctl.Update(func(r mandel.Request) mandel.Request { return r.StepColorCount(c.Delta) })
	case OpShift:
		ctl.Update(func(r mandel.Request) mandel.Request { return r.StepColorShift(c.Delta) })
	case OpReset:
		ctl.Reset()
	case OpRecompute:
		ctl.Recompute()
	case OpLandmark:
		region, ok := mandel.Landmark(c.Name)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownLandmark, c.Name)
		}
		ctl.Update(func(r mandel.Request) mandel.Request {
			r.Frame = region.Frame()
			return r
		})
	case OpResize:
	default:
		return fmt.Errorf("%w %q", ErrUnknownOp, c.Op)
	}
	return nil
}

// Message types.
const (
	TypeSurface = "surface"
	TypeStatus  = "status"
)

// Message is sent by the server. Exactly one of Surface and Status is set,
// as named by Type.
type Message struct {
	Type string `json:"type"`
	*Surface
	*Status
}

// Surface is a published render, scaled to the viewer's display.
type Surface struct {
	Generation uint64  `json:"generation"`
	Step       int     `json:"step"`
	PixelGroup float64 `json:"pixelGroup"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PNG        []byte  `json:"png"` // base64 in JSON
}

// Status is the rendering progress.
type Status struct {
	Completion   float64 `json:"completion"`
	Workers      int     `json:"workers"`
	MaxIteration int     `json:"maxIteration"`
	ColorCount   int     `json:"colorCount"`
	ColorShift   int     `json:"colorShift"`
	Text         string  `json:"text"`
}

// MaxDisplaySize bounds each side of a surface sent to a viewer.
const MaxDisplaySize = 8192

// DisplaySize clamps a display size reported by a viewer to MaxDisplaySize.
// A non-positive side yields 0, 0: the viewer has no usable size.
func DisplaySize(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return min(width, MaxDisplaySize), min(height, MaxDisplaySize)
}

// SurfaceMessage scales s to width x height and encodes it as PNG.
// Without a usable size the render size is used.
func SurfaceMessage(s *mandel.Surface, width, height int) (Message, error) {
	width, height = DisplaySize(width, height)
	if width == 0 {
		width, height = DisplaySize(s.Request.Width, s.Request.Height)
	}
	if width == 0 {
		width, height = 1, 1
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.Scaled(width, height)); err != nil {
		return Message{}, fmt.Errorf("viewer: encode surface: %w", err)
	}
	return Message{
		Type: TypeSurface,
		Surface: &Surface{
			Generation: s.Generation,
			Step:       s.Step,
			PixelGroup: s.PixelGroup,
			Width:      width,
			Height:     height,
			PNG:        buf.Bytes(),
		},
	}, nil
}

var printer = message.NewPrinter(language.English)

// StatusMessage reports the progress of p rendering req.
func StatusMessage(p mandel.SurfaceProvider, req mandel.Request, workers int) Message {
	st := &Status{
		Completion:   p.Completion(),
		Workers:      workers,
		MaxIteration: req.MaxIteration,
		ColorCount:   req.ColorCount,
		ColorShift:   req.ColorShift,
	}
	st.Text = StatusText(st, p.Surface())
	return Message{Type: TypeStatus, Status: st}
}

// StatusText formats a status line for humans.
func StatusText(st *Status, s *mandel.Surface) string {
	text := printer.Sprintf("%.1f%% · %d workers · max iteration %d · %d colors · shift %d",
		st.Completion*100, st.Workers, st.MaxIteration, st.ColorCount, st.ColorShift)
	if s != nil && s.Image != nil {
		size := s.Image.Bounds().Size()
		text += printer.Sprintf(" · %d×%d px", size.X, size.Y)
	}
	return text
}
