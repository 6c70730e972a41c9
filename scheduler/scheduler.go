// Package scheduler progressively renders a viewport on a pool of workers.
//
// Every change of the viewport starts a new generation: a coarse preview task
// over the whole viewport, whose per column timings split the following
// refinement steps into bands of about equal cost, one per worker. Each step
// halves the pixel group until full resolution (or supersampling) is reached.
// Only the newest generation is ever published.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/palette"
	"github.com/marben/mandel_explorer/render"
)

var (
	errRequestChanged = errors.New("request changed")
	errRecompute      = errors.New("recompute")
	errFinished       = errors.New("generation finished")
)

// Config of a WorkScheduler. Zero values select the defaults.
type Config struct {
	Workers           int           // default runtime.GOMAXPROCS(0)
	TickInterval      time.Duration // default 50ms
	InitialPixelGroup float64       // preview pixel group, default 8
	MinPixelGroup     float64       // last refinement step, InitialPixelGroup halved k times, default 0.25

	Ring    []color.RGBA // default palette.DefaultRing
	Weights []float64    // default palette.DefaultWeights
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 50 * time.Millisecond
	}
	if c.InitialPixelGroup <= 0 {
		c.InitialPixelGroup = 8
	}
	if c.MinPixelGroup <= 0 {
		c.MinPixelGroup = 0.25
	}
	if c.MinPixelGroup > c.InitialPixelGroup {
		c.MinPixelGroup = c.InitialPixelGroup
	}
	if c.Ring == nil {
		c.Ring = palette.DefaultRing
	}
	if c.Weights == nil {
		c.Weights = palette.DefaultWeights
	}
	return c
}

// WorkScheduler implements mandel.SurfaceProvider and mandel.Viewport.
//
// All generation state is owned by the supervisor goroutine started by Run.
// Viewport methods post commands to it and return immediately.
type WorkScheduler struct {
	cfg      Config
	pool     *pool
	commands chan func(*WorkScheduler)
	done     chan struct{}
	started  atomic.Bool

	// supervisor state
	ctx          context.Context
	req          mandel.Request
	gen          *generation
	lastID       uint64
	paletteCount int
	palette      palette.Palette
	launch       func(g *generation, tasks []*render.Task)

	// published state
	request    atomic.Pointer[mandel.Request]
	surface    atomic.Pointer[mandel.Surface]
	completion atomic.Uint64 // float64 bits
	subs       subscribers
}

var (
	_ mandel.SurfaceProvider = (*WorkScheduler)(nil)
	_ mandel.Viewport        = (*WorkScheduler)(nil)
)

// New creates a scheduler rendering req once Run is called.
// It fails if the configured palette is invalid.
func New(cfg Config, req mandel.Request) (*WorkScheduler, error) {
	cfg = cfg.withDefaults()
	req = req.Normalize()

	s := &WorkScheduler{
		cfg:      cfg,
		pool:     newPool(cfg.Workers),
		commands: make(chan func(*WorkScheduler), 64),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		req:      req,
	}
	s.launch = s.submit
	s.request.Store(&req)

	if err := CheckPixelGroups(cfg.InitialPixelGroup, cfg.MinPixelGroup); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if _, err := s.paletteFor(req.ColorCount); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return s, nil
}

// CheckPixelGroups checks that halving initial a whole number of times ends
// exactly at minimum, so every refinement step doubles the resolution.
func CheckPixelGroups(initial, minimum float64) error {
	if initial <= 0 || minimum <= 0 {
		return fmt.Errorf("pixel groups must be positive, got %v and %v", initial, minimum)
	}
	if frac, _ := math.Frexp(initial / minimum); initial < minimum || frac != 0.5 {
		return fmt.Errorf("minimum pixel group %v is not %v halved a whole number of times", minimum, initial)
	}
	return nil
}

// Run starts the workers and supervises rendering until ctx is done.
// It may be called once.
func (s *WorkScheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler: already running")
	}
	defer close(s.done)

	s.ctx = ctx
	s.pool.start(ctx)
	defer s.pool.wait()

	mandel.Logger().Info("scheduler started", "workers", s.cfg.Workers, "tick", s.cfg.TickInterval)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ctx.Done():
			s.abort(context.Cause(ctx))
			s.subs.closeAll()
			mandel.Logger().Info("scheduler stopped", "cause", context.Cause(ctx))
			return nil
		case cmd := <-s.commands:
			cmd(s)
		case r := <-s.pool.results:
			s.handleResult(r)
		case <-ticker.C:
			s.tick()
		}
	}
}

// do posts cmd to the supervisor. Commands sent before Run are queued.
func (s *WorkScheduler) do(cmd func(*WorkScheduler)) {
	select {
	case s.commands <- cmd:
	case <-s.done:
	}
}

// Request returns the request currently being rendered.
func (s *WorkScheduler) Request() mandel.Request { return *s.request.Load() }

// Update replaces the request by fn(current). A changed request abandons the
// running generation and starts a new one.
func (s *WorkScheduler) Update(fn func(mandel.Request) mandel.Request) {
	s.do(func(s *WorkScheduler) { s.setRequest(fn(s.req)) })
}

func (s *WorkScheduler) SetRequest(req mandel.Request) {
	s.Update(func(mandel.Request) mandel.Request { return req })
}

// Pan moves the view by the given fractions of its size.
func (s *WorkScheduler) Pan(fx, fy float64) {
	s.Update(func(r mandel.Request) mandel.Request {
		r.Frame = r.Frame.Pan(fx, fy)
		return r
	})
}

// ZoomAt zooms one step in or out around the point at (fx, fy) of the view.
func (s *WorkScheduler) ZoomAt(fx, fy float64, in bool) {
	s.Update(func(r mandel.Request) mandel.Request {
		r.Frame = r.Frame.ZoomAt(fx, fy, in)
		return r
	})
}

func (s *WorkScheduler) Nudge(dx, dy int, fine bool) {
	s.Update(func(r mandel.Request) mandel.Request {
		r.Frame = r.Frame.Nudge(dx, dy, fine)
		return r
	})
}

// Resize changes the full resolution target size.
func (s *WorkScheduler) Resize(width, height int) {
	s.Update(func(r mandel.Request) mandel.Request {
		r.Width, r.Height = width, height
		return r
	})
}

// Reset restores the default view, keeping the target size.
func (s *WorkScheduler) Reset() {
	s.Update(func(r mandel.Request) mandel.Request {
		return mandel.ResetRequest(r.Width, r.Height)
	})
}

// Recompute abandons the running generation and renders the request again.
func (s *WorkScheduler) Recompute() {
	s.do(func(s *WorkScheduler) {
		s.abort(errRecompute)
		s.startGeneration()
	})
}

// Surface returns the latest published surface, nil before the first one.
func (s *WorkScheduler) Surface() *mandel.Surface { return s.surface.Load() }

// Completion returns the completion of the running step, as of the last tick.
func (s *WorkScheduler) Completion() float64 {
	return math.Float64frombits(s.completion.Load())
}

// Subscribe returns a channel receiving published surfaces, starting with the
// current one. An unreceived surface is replaced by a newer one. The channel
// is closed by the returned cancel func or when Run returns.
func (s *WorkScheduler) Subscribe() (<-chan *mandel.Surface, func()) {
	m := s.subs.add()
	if cur := s.Surface(); cur != nil {
		m.put(cur)
	}
	return m.ch, func() { s.subs.remove(m) }
}

// Workers returns the number of busy workers.
func (s *WorkScheduler) Workers() int { return s.pool.Busy() }

// PoolSize returns the number of workers.
func (s *WorkScheduler) PoolSize() int { return s.pool.size }

func (s *WorkScheduler) setRequest(req mandel.Request) {
	req = req.Normalize()
	if req.Equal(s.req) {
		return
	}
	if _, err := s.paletteFor(req.ColorCount); err != nil {
		mandel.Logger().Warn("request rejected", "request", req, "err", err)
		return
	}

	s.req = req
	s.request.Store(&req)
	s.abort(errRequestChanged)
	s.startGeneration()
}

// tick is the periodic transition point: it refreshes the completion,
// restarts on a changed request and launches the next refinement step.
func (s *WorkScheduler) tick() {
	s.storeCompletion()

	g := s.gen
	if g == nil || !g.req.Equal(s.req) {
		s.abort(errRequestChanged)
		s.startGeneration()
		return
	}
	if g.done || g.running || g.fractions == nil {
		return
	}
	s.launchStep(g, g.bandTasks())
}

func (s *WorkScheduler) storeCompletion() {
	c := 0.0
	if s.gen != nil {
		c = s.gen.completion()
	}
	s.completion.Store(math.Float64bits(c))
}

func (s *WorkScheduler) startGeneration() {
	pal, err := s.paletteFor(s.req.ColorCount)
	if err != nil {
		// checked when the request was accepted
		panic(err)
	}

	s.lastID++
	ctx, cancel := context.WithCancelCause(s.ctx)
	g := &generation{
		id:         s.lastID,
		req:        s.req,
		palette:    pal,
		ctx:        ctx,
		cancel:     cancel,
		pixelGroup: s.cfg.InitialPixelGroup,
	}
	s.gen = g

	mandel.Logger().Info("generation started", "generation", g.id, "request", g.req)
	s.launchStep(g, []*render.Task{g.previewTask()})
}

func (s *WorkScheduler) launchStep(g *generation, tasks []*render.Task) {
	g.tasks = tasks
	g.running = true
	g.arrived = 0
	g.bands = nil
	if g.step > 0 {
		g.bands = make([]*render.Result, len(tasks))
	}

	mandel.Logger().Debug("step launched",
		"generation", g.id, "step", g.step, "pixelGroup", g.pixelGroup, "tasks", len(tasks))
	s.launch(g, tasks)
	s.storeCompletion()
}

func (s *WorkScheduler) submit(g *generation, tasks []*render.Task) {
	for _, t := range tasks {
		s.pool.submit(g.ctx, t)
	}
}

// abort cancels the running generation without waiting for its tasks.
func (s *WorkScheduler) abort(cause error) {
	if s.gen == nil {
		return
	}
	if !s.gen.done {
		mandel.Logger().Debug("generation aborted", "generation", s.gen.id, "cause", cause)
	}
	s.gen.cancel(cause)
	s.gen = nil
}

func (s *WorkScheduler) handleResult(r taskResult) {
	if r.err != nil {
		s.taskFailed(r.spec, r.err)
		return
	}

	res := r.res
	g := s.gen
	if g == nil || res.Generation != g.id || res.Step != g.step || !g.running {
		mandel.Logger().Debug("dropped stale result",
			"generation", res.Generation, "step", res.Step, "index", res.Index)
		return
	}

	if res.Preview() {
		g.fractions = Partition(res.Timings, s.pool.size)
		s.publish(g, res.Image, nil)
		s.finishStep(g)
		return
	}

	if res.Index < 0 || res.Index >= len(g.bands) || g.bands[res.Index] != nil {
		mandel.Logger().Warn("unexpected band", "generation", g.id, "step", g.step, "index", res.Index)
		return
	}
	g.bands[res.Index] = res
	g.arrived++
	if g.arrived < len(g.bands) {
		return
	}

	s.publish(g, stitch(g.bands), g.fractions)
	s.finishStep(g)
}

// taskFailed abandons the generation of a failed task. The next tick starts
// a fresh one for the same request.
func (s *WorkScheduler) taskFailed(spec render.TaskSpec, err error) {
	g := s.gen
	if g == nil || spec.Generation != g.id || g.done {
		mandel.Logger().Debug("dropped stale failure", "generation", spec.Generation, "err", err)
		return
	}
	mandel.Logger().Error("task failed",
		"generation", spec.Generation, "step", spec.Step, "index", spec.Index, "err", err)
	s.abort(fmt.Errorf("task %d of step %d failed: %w", spec.Index, spec.Step, err))
	s.storeCompletion()
}

func (s *WorkScheduler) finishStep(g *generation) {
	g.running = false
	g.bands = nil
	if g.pixelGroup <= s.cfg.MinPixelGroup {
		g.done = true
		g.cancel(errFinished)
		mandel.Logger().Info("generation finished", "generation", g.id, "steps", g.step+1)
	} else {
		g.step++
		g.pixelGroup /= 2
	}
	s.storeCompletion()
}

func (s *WorkScheduler) publish(g *generation, img *image.RGBA, fractions []float64) {
	surface := &mandel.Surface{
		Image:      img,
		Request:    g.req,
		Generation: g.id,
		Step:       g.step,
		PixelGroup: g.pixelGroup,
		Fractions:  fractions,
		Final:      g.pixelGroup <= s.cfg.MinPixelGroup,
	}
	s.surface.Store(surface)
	s.subs.publish(surface)

	mandel.Logger().Info("surface published",
		"generation", g.id, "step", g.step, "pixelGroup", g.pixelGroup,
		"size", img.Bounds().Size())
}

// paletteFor returns the palette of count colors, caching the last one.
func (s *WorkScheduler) paletteFor(count int) (palette.Palette, error) {
	if s.palette != nil && s.paletteCount == count {
		return s.palette, nil
	}
	p, err := palette.Generate(count, s.cfg.Ring, s.cfg.Weights)
	if err != nil {
		return nil, err
	}
	s.palette, s.paletteCount = p, count
	return p, nil
}
