package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/pipeline"
)

type task struct {
	ctx       context.Context
	job       pipeline.Job
	out       chan Outcome
	submitted time.Time
}

type ProcessorQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan task, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(runner Runner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: 2,
		timeout: 30 * time.Minute,
		ch:      make(chan task, 16),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.started", "worker_id", workerID)

				for t := range q.ch {
					q.process(workerID, t)
				}

				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, t task) {
	defer close(t.out)
	waited := time.Since(t.submitted)

	if err := t.ctx.Err(); err != nil {
		q.logger.Warn("queue.job.abandoned", "worker_id", workerID, "pdf", t.job.PDFPath, "error", err)
		t.out <- Outcome{Err: err, Queued: waited}
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, q.timeout)
	defer cancel()

	start := time.Now()
	res, err := q.runner.Run(ctx, t.job)
	elapsed := time.Since(start)

	if err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "pdf", t.job.PDFPath, "error", err, "elapsed_ms", elapsed.Milliseconds())
	} else {
		q.logger.Info("queue.job.ok", "worker_id", workerID, "pdf", t.job.PDFPath, "rows", res.Rows, "elapsed_ms", elapsed.Milliseconds())
	}
	t.out <- Outcome{Result: res, Err: err, Queued: waited, Duration: elapsed}
}

// Submit enqueues job and returns a channel that yields its Outcome once. When
// the buffer is full Submit blocks until a slot frees up or ctx is done. ctx
// also bounds the run itself.
func (q *ProcessorQueue) Submit(ctx context.Context, job pipeline.Job) (<-chan Outcome, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.submit.rejected", "pdf", job.PDFPath)
		return nil, common.ErrQueueClosed
	}

	t := task{ctx: ctx, job: job, out: make(chan Outcome, 1), submitted: time.Now()}
	select {
	case q.ch <- t:
		q.logger.Info("queue.submit.ok", "pdf", job.PDFPath)
		return t.out, nil
	default:
	}

	q.logger.Warn("queue.full", "pdf", job.PDFPath, "capacity", cap(q.ch))
	select {
	case q.ch <- t:
		return t.out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.ok")
	}
}
