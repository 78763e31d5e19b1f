package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const JobArchivePayslip = "archive_payslip"

// Queue runs fire-and-forget work on a fixed set of workers. Enqueue never
// blocks; work offered to a full queue is dropped and logged.
type Queue struct {
	logger  *zap.Logger
	queue   chan job
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type job struct {
	Type string
	Run  func(context.Context) error
}

func New(size, workers int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{logger: logger, queue: make(chan job, size), workers: workers}
}

// Start launches the workers. Jobs run under ctx, so it should outlive the
// requests that enqueue them.
func (q *Queue) Start(ctx context.Context) {
	for range q.workers {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue) Enqueue(jobType string, run func(context.Context) error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("job queue closed", zap.String("jobType", jobType))
		return false
	}
	select {
	case q.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		q.logger.Warn("job queue full", zap.String("jobType", jobType))
		return false
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for j := range q.queue {
		q.runJob(ctx, j)
	}
}

func (q *Queue) runJob(ctx context.Context, j job) {
	start := time.Now()
	err := j.Run(ctx)
	if err != nil {
		q.logger.Warn("job run failed", zap.String("jobType", j.Type), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	q.logger.Debug("job run completed", zap.String("jobType", j.Type), zap.Duration("duration", time.Since(start)))
}
