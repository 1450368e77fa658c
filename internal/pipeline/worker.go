package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/star/goeschip/internal/metrics"
)

// jobResult is the output of a single job.
type jobResult struct {
	result Result
	err    error
}

// WorkerPool manages a fixed number of goroutines processing scenes in
// parallel.
type WorkerPool struct {
	workers int
	proc    *Processor
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, proc *Processor, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		proc:    proc,
		logger:  logger,
	}
}

// ProcessBatch runs every job through the processor. Returns results for
// all jobs that succeeded, ordered by scene directory, with success and
// error counts. Failed scenes are logged and skipped; they never stop the
// batch.
func (wp *WorkerPool) ProcessBatch(ctx context.Context, jobs []Job) ([]Result, int, int) {
	if len(jobs) == 0 {
		return nil, 0, 0
	}
	start := time.Now()

	jobCh := make(chan Job, wp.workers*2)
	results := make(chan jobResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				res, err := wp.proc.Process(ctx, job)
				select {
				case results <- jobResult{result: res, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results.
	out := make([]Result, 0, len(jobs))
	var successCount, errorCount int

	for r := range results {
		if r.err != nil {
			errorCount++
			reason := "other"
			var se *StageError
			if errors.As(r.err, &se) {
				reason = se.Reason()
			}
			metrics.RecordSceneFailure(reason)
			wp.logger.Warn("scene skipped",
				"reason", reason,
				"error", r.err,
			)
			continue
		}
		successCount++
		out = append(out, r.result)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Job.Dir < out[j].Job.Dir })
	metrics.SetBatchStats(successCount, errorCount, time.Since(start))

	return out, successCount, errorCount
}
