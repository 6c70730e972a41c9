package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/render"
)

type job struct {
	ctx  context.Context
	task *render.Task
}

// taskResult is sent to the supervisor exactly once per finished task.
// Aborted tasks report nothing.
type taskResult struct {
	spec render.TaskSpec
	res  *render.Result
	err  error
}

// pool runs tasks on a fixed number of worker goroutines.
// Workers never talk to each other, only to the supervisor via results.
type pool struct {
	size    int
	jobs    chan job
	results chan taskResult
	busy    atomic.Int32
	wg      sync.WaitGroup
}

func newPool(size int) *pool {
	size = max(size, 1)
	return &pool{
		size:    size,
		jobs:    make(chan job, 4*size),
		results: make(chan taskResult, 4*size),
	}
}

// start launches the workers. They stop when ctx is done.
func (p *pool) start(ctx context.Context) {
	for id := range p.size {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(ctx, id)
		}()
	}
}

func (p *pool) wait() { p.wg.Wait() }

// submit queues a task without blocking the caller.
func (p *pool) submit(ctx context.Context, t *render.Task) {
	j := job{ctx: ctx, task: t}
	select {
	case p.jobs <- j:
	default:
		go func() {
			select {
			case p.jobs <- j:
			case <-ctx.Done():
			}
		}()
	}
}

func (p *pool) work(ctx context.Context, id int) {
	log := mandel.Logger().With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.run(ctx, j, log)
		}
	}
}

func (p *pool) run(ctx context.Context, j job, log *slog.Logger) {
	p.incBusy()
	defer p.decBusy()

	spec := j.task.Spec()
	res, err := j.task.Run(j.ctx)
	if errors.Is(err, render.ErrAborted) {
		log.Debug("task aborted", "generation", spec.Generation, "step", spec.Step, "index", spec.Index)
		return
	}

	select {
	case p.results <- taskResult{spec: spec, res: res, err: err}:
	case <-j.ctx.Done():
	case <-ctx.Done():
	}
}

func (p *pool) incBusy() { p.busy.Add(1) }

func (p *pool) decBusy() { p.busy.Add(-1) }

// Busy is the number of workers currently running a task.
func (p *pool) Busy() int { return int(p.busy.Load()) }
