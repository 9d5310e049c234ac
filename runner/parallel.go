package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/storyproof/story-acceptor/types"
)

// pairWork is one TestCase×Driver pairing scheduled for execution.
type pairWork struct {
	Test        types.TestCase
	Driver      types.Driver
	TestIndex   int
	DriverIndex int
	// Slot is the precomputed dense matrix index for this pair. Each
	// slot is written by exactly one worker, so the matrix needs no
	// locking.
	Slot int
}

// parallelExecutor fans pair work out to a fixed-size worker pool.
type parallelExecutor struct {
	run         func(context.Context, pairWork) *types.ExecutionResult
	concurrency int
	log         log.Logger
}

func newParallelExecutor(logger log.Logger, concurrency int, run func(context.Context, pairWork) *types.ExecutionResult) *parallelExecutor {
	if concurrency < 1 {
		panic("concurrency must be positive")
	}
	if concurrency > 32 {
		logger.Warn("Very high concurrency requested", "concurrency", concurrency)
	}
	return &parallelExecutor{
		run:         run,
		concurrency: concurrency,
		log:         logger.New("component", "parallel-executor"),
	}
}

// ExecutePairs runs all work items and writes each completed result into
// its matrix slot. It returns the number of pairs that produced a
// result; on context cancellation the remaining slots stay nil.
func (pe *parallelExecutor) ExecutePairs(ctx context.Context, work []pairWork, matrix []*types.ExecutionResult) int {
	if len(work) == 0 {
		pe.log.Debug("No pairs to execute")
		return 0
	}

	pe.log.Info("Starting parallel execution", "pairs", len(work), "concurrency", pe.concurrency)

	workChan := make(chan pairWork, min(pe.concurrency*2, 100))
	var completed atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < pe.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pe.worker(ctx, workerID, workChan, matrix, &completed)
		}(i)
	}

	go func() {
		defer close(workChan)
		for _, w := range work {
			select {
			case workChan <- w:
			case <-ctx.Done():
				pe.log.Debug("Context cancelled while queueing pairs")
				return
			}
		}
	}()

	wg.Wait()
	return int(completed.Load())
}

func (pe *parallelExecutor) worker(ctx context.Context, workerID int, workChan <-chan pairWork, matrix []*types.ExecutionResult, completed *atomic.Int64) {
	pe.log.Debug("Worker starting", "workerID", workerID)
	defer pe.log.Debug("Worker exiting", "workerID", workerID)

	for {
		select {
		case w, ok := <-workChan:
			if !ok {
				return
			}
			pe.log.Debug("Worker processing pair", "workerID", workerID, "test", w.Test.ID, "driver", w.Driver.Name)

			result := pe.run(ctx, w)
			if result == nil {
				// Invocation was torn down by a global interrupt; the
				// slot stays empty and the run reports truncation.
				continue
			}
			matrix[w.Slot] = result
			completed.Add(1)

		case <-ctx.Done():
			pe.log.Debug("Worker received context cancellation", "workerID", workerID)
			return
		}
	}
}
