package scheduler

import (
	"context"
	"image"
	"testing"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/render"
)

// manual is a scheduler whose tasks are run by the test instead of the pool.
type manual struct {
	*WorkScheduler
	launched [][]*render.Task
}

func newManual(t *testing.T, cfg Config, req mandel.Request) *manual {
	t.Helper()
	s, err := New(cfg, req)
	if err != nil {
		t.Fatal(err)
	}
	m := &manual{WorkScheduler: s}
	s.launch = func(_ *generation, tasks []*render.Task) {
		m.launched = append(m.launched, tasks)
	}
	return m
}

// finish runs the most recently launched tasks and feeds their results back.
func (m *manual) finish(t *testing.T) {
	t.Helper()
	for _, task := range m.last(t) {
		res, err := task.Run(context.Background())
		if err != nil {
			t.Fatalf("task.Run() error: %v", err)
		}
		m.handleResult(taskResult{spec: task.Spec(), res: res})
	}
}

func (m *manual) last(t *testing.T) []*render.Task {
	t.Helper()
	if len(m.launched) == 0 {
		t.Fatal("no tasks launched")
	}
	return m.launched[len(m.launched)-1]
}

func TestSchedulerRefinementSteps(t *testing.T) {
	cfg := Config{Workers: 3}
	m := newManual(t, cfg, mandel.DefaultRequest(64, 36))

	m.tick()
	if len(m.launched) != 1 || len(m.last(t)) != 1 {
		t.Fatalf("first tick launched %d steps, want a single preview", len(m.launched))
	}
	preview := m.last(t)[0]
	if !preview.IsPreview() {
		t.Fatal("first task is not a preview")
	}
	if got := preview.Spec().Size; got != image64x36(8) {
		t.Errorf("preview size = %v, want %v", got, image64x36(8))
	}

	m.finish(t)
	s := m.Surface()
	if s == nil || s.Step != 0 || s.PixelGroup != 8 || s.Generation != 1 {
		t.Fatalf("after preview Surface() = %+v, want step 0 at pixel group 8 of generation 1", s)
	}
	checkFractions(t, m.gen.fractions, 3)

	wantGroups := []float64{4, 2, 1, 0.5, 0.25}
	for i, pg := range wantGroups {
		m.tick()
		if len(m.launched) != i+2 {
			t.Fatalf("step %d: %d launches, want %d", i+1, len(m.launched), i+2)
		}
		tasks := m.last(t)
		if len(tasks) != 3 {
			t.Fatalf("step %d: %d tasks, want 3", i+1, len(tasks))
		}

		// no relaunch while a step is running
		m.tick()
		if len(m.launched) != i+2 {
			t.Fatalf("step %d relaunched while running", i+1)
		}

		m.finish(t)
		s := m.Surface()
		if s.Step != i+1 || s.PixelGroup != pg {
			t.Fatalf("step %d: Surface() step %d pixel group %v, want step %d pixel group %v",
				i+1, s.Step, s.PixelGroup, i+1, pg)
		}
		if got, want := s.Image.Bounds().Size(), image64x36(pg); got != want {
			t.Errorf("step %d: stitched size = %v, want %v", i+1, got, want)
		}
		if s.Generation != 1 {
			t.Errorf("step %d: generation %d, want 1", i+1, s.Generation)
		}
	}

	if !m.gen.done {
		t.Error("generation not done at the minimum pixel group")
	}
	if got := m.Completion(); got != 1 {
		t.Errorf("Completion() = %v, want 1", got)
	}

	// idle: nothing more happens for an unchanged request
	n := len(m.launched)
	m.tick()
	m.tick()
	if len(m.launched) != n || m.gen.id != 1 {
		t.Errorf("idle ticks launched %d steps, generation %d", len(m.launched)-n, m.gen.id)
	}
}

func TestSchedulerUnchangedRequestContinues(t *testing.T) {
	req := mandel.DefaultRequest(32, 32)
	m := newManual(t, Config{Workers: 2}, req)
	m.tick()
	m.finish(t)

	// setting the same request again must not restart
	m.setRequest(req)
	m.tick()
	if m.gen.id != 1 {
		t.Fatalf("generation = %d after an unchanged request, want 1", m.gen.id)
	}
	if got := m.last(t)[0].Spec().Step; got != 1 {
		t.Errorf("launched step %d, want refinement step 1", got)
	}
}

func TestSchedulerTaskFailureRestarts(t *testing.T) {
	m := newManual(t, Config{Workers: 2}, mandel.DefaultRequest(32, 32))
	m.tick()
	m.finish(t)
	m.tick()
	band := m.last(t)[0]
	if _, err := band.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// a task runs once, the second Run fails
	_, err := band.Run(context.Background())
	if err == nil {
		t.Fatal("second Run() succeeded")
	}

	// a failure of an older generation is ignored
	m.handleResult(taskResult{spec: render.TaskSpec{Generation: 99}, err: err})
	if m.gen == nil || m.gen.id != 1 {
		t.Fatal("failure of another generation abandoned the running one")
	}

	m.handleResult(taskResult{spec: band.Spec(), err: err})
	if m.gen != nil {
		t.Fatal("generation kept after a failed task")
	}

	m.tick()
	if m.gen == nil || m.gen.id != 2 {
		t.Fatalf("tick after a failure did not start generation 2")
	}
	if !m.last(t)[0].IsPreview() || !m.gen.req.Equal(m.req) {
		t.Error("restart is not a preview of the same request")
	}
	m.finish(t)
	if s := m.Surface(); s == nil || s.Generation != 2 {
		t.Errorf("Surface() = %+v, want generation 2", s)
	}
}

func TestSchedulerDropsStaleResults(t *testing.T) {
	m := newManual(t, Config{Workers: 2}, mandel.DefaultRequest(32, 32))
	m.tick()
	m.finish(t)
	m.tick()
	stale := m.last(t)
	first := m.Surface()

	m.setRequest(m.req.StepMaxIteration(1))
	if m.gen.id != 2 {
		t.Fatalf("generation = %d after a changed request, want 2", m.gen.id)
	}
	if m.last(t)[0].Spec().Generation != 2 || !m.last(t)[0].IsPreview() {
		t.Fatal("changed request did not launch a new preview")
	}

	for _, task := range stale {
		res, err := task.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		m.handleResult(taskResult{res: res})
	}
	if m.Surface() != first {
		t.Fatalf("stale bands of generation 1 were published: %+v", m.Surface())
	}

	m.finish(t)
	if s := m.Surface(); s.Generation != 2 || s.Step != 0 {
		t.Errorf("Surface() generation %d step %d, want generation 2 step 0", s.Generation, s.Step)
	}
}

func TestSchedulerAbortCancelsTasks(t *testing.T) {
	m := newManual(t, Config{Workers: 2}, mandel.DefaultRequest(32, 32))
	m.tick()
	g := m.gen

	m.setRequest(m.req.StepColorShift(1))
	if g.ctx.Err() == nil {
		t.Fatal("abandoned generation context not cancelled")
	}
	if _, err := m.launched[0][0].Run(g.ctx); err == nil {
		t.Error("task of abandoned generation ran to completion")
	}
}

func TestSchedulerRecomputeRestarts(t *testing.T) {
	m := newManual(t, Config{Workers: 2}, mandel.DefaultRequest(16, 16))
	m.tick()
	m.finish(t)

	m.Recompute()
	cmd := <-m.commands
	cmd(m.WorkScheduler)
	if m.gen.id != 2 {
		t.Errorf("generation = %d after Recompute, want 2", m.gen.id)
	}
}

func TestSchedulerReset(t *testing.T) {
	req := mandel.DefaultRequest(16, 16)
	req.Frame = mandel.SeahorseValley.Frame()
	req.MaxIteration = 3000
	m := newManual(t, Config{Workers: 1}, req)

	m.Reset()
	cmd := <-m.commands
	cmd(m.WorkScheduler)

	want := mandel.ResetRequest(16, 16)
	if got := m.Request(); !got.Equal(want) {
		t.Errorf("Request() after Reset = %v, want %v", got, want)
	}
}

func TestSchedulerSinglePixelGroup(t *testing.T) {
	m := newManual(t, Config{Workers: 2, InitialPixelGroup: 1, MinPixelGroup: 1}, mandel.DefaultRequest(8, 8))
	m.tick()
	m.finish(t)
	if !m.gen.done {
		t.Error("generation with a single step not done after its preview")
	}
}

func TestBandTasksTile(t *testing.T) {
	g := &generation{
		req:        mandel.DefaultRequest(101, 10).Normalize(),
		fractions:  []float64{0.3, 0.0, 0.45, 0.25},
		pixelGroup: 1,
		step:       1,
	}
	tasks := g.bandTasks()
	total := 0
	for i, task := range tasks {
		spec := task.Spec()
		if spec.Index != i || spec.Total != 4 {
			t.Errorf("task %d: index %d/%d", i, spec.Index, spec.Total)
		}
		if spec.Size.Y != 10 {
			t.Errorf("task %d: height %d, want 10", i, spec.Size.Y)
		}
		total += spec.Size.X
	}
	if total != 101 {
		t.Errorf("band widths sum to %d, want 101", total)
	}
	if w := tasks[1].Spec().Size.X; w != 0 {
		t.Errorf("empty band width = %d, want 0", w)
	}
}

func image64x36(pg float64) image.Point {
	return image.Pt(groupSize(64, pg), groupSize(36, pg))
}
