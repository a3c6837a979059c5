package reconciliation

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/angelmondragon/payrecon-backend/pkg/errors"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
	"go.uber.org/multierr"
)

// PoolParams sizes a worker pool. WorkerParams.ID is used as a prefix; each
// worker gets its own numbered id.
type PoolParams struct {
	Size   int
	Worker WorkerParams
	Logger *logger.Logger
}

// Pool runs a fixed set of workers over the shared queue.
type Pool struct {
	workers []*Worker
	logg    *logger.Logger
}

// NewPool builds Size workers from the shared params.
func NewPool(params PoolParams) (*Pool, error) {
	if params.Size <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pool requires a positive size")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pool requires a logger")
	}

	workers := make([]*Worker, 0, params.Size)
	for i := 0; i < params.Size; i++ {
		workerParams := params.Worker
		workerParams.ID = fmt.Sprintf("%s-%d", params.Worker.ID, i+1)
		worker, err := NewWorker(workerParams)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	return &Pool{workers: workers, logg: params.Logger}, nil
}

// Run blocks until the context is canceled and every worker has drained.
// Cancellation is the normal shutdown path and is not reported as an error.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(p.workers))

	for i, worker := range p.workers {
		wg.Add(1)
		go func(i int, worker *Worker) {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				errs[i] = err
			}
		}(i, worker)
	}
	wg.Wait()

	p.logg.Info(ctx, "reconciliation pool drained")
	return multierr.Combine(errs...)
}
