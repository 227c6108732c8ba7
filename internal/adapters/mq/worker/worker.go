package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wolfinder/badges/internal/adapters/mq/queue"
	"github.com/wolfinder/badges/internal/domain/dedupe"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
	"github.com/wolfinder/badges/pkg/metrics"
)

// Default pool configuration.
const (
	defaultQueueCapacity   = 256
	defaultShutdownTimeout = 30 * time.Second
)

// ErrNotStarted is returned by Submit before Start or after Stop.
var ErrNotStarted = errors.New("worker pool not running")

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, job model.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job model.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job model.Job) error { return f(ctx, job) }

// InMemoryWorker drains one queue, one job at a time.
type InMemoryWorker struct {
	name    string
	queue   *queue.InMemoryQueue
	handler Handler
	pending dedupe.Deduper
	logger  logger.Logger
	done    chan struct{}
}

func newWorker(name string, q *queue.InMemoryQueue, h Handler, pending dedupe.Deduper, l logger.Logger) *InMemoryWorker {
	return &InMemoryWorker{
		name:    name,
		queue:   q,
		handler: h,
		pending: pending,
		logger:  l.Named(name),
		done:    make(chan struct{}),
	}
}

// Run processes jobs until the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for job := range w.queue.Dequeue() {
		w.process(ctx, job)
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job model.Job) {
	// A job submitted from here on must run again after this one.
	w.pending.Unrecord(ctx, job.Key())

	start := time.Now()
	kind := string(job.Kind)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordJobProcessed(kind, "panic")
			w.logger.Error(ctx, "job panicked",
				logger.String("kind", kind),
				logger.Int64("professional_id", job.ProfessionalID),
				logger.Any("panic", r),
			)
		}
		metrics.RecordJobLatency(kind, float64(time.Since(start).Microseconds())/1000)
	}()

	if err := w.handler.Handle(ctx, job); err != nil {
		metrics.RecordJobProcessed(kind, "error")
		w.logger.Error(ctx, "job failed",
			logger.String("kind", kind),
			logger.Int64("professional_id", job.ProfessionalID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordJobProcessed(kind, "ok")
}

// Pool routes jobs to workers by professional id. All jobs for one
// professional land on the same worker and run in submission order, so
// award writes for a professional are serialized.
type Pool struct {
	handler         Handler
	workerCount     int
	queueCapacity   int
	shutdownTimeout time.Duration
	coalesce        map[model.JobKind]bool
	pending         dedupe.Deduper
	logger          logger.Logger

	mu      sync.RWMutex
	running bool
	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker
}

// NewPool creates a pool that hands jobs to h. The default worker count is runtime.NumCPU().
func NewPool(h Handler, opts ...Option) *Pool {
	p := &Pool{
		handler:         h,
		workerCount:     runtime.NumCPU(),
		queueCapacity:   defaultQueueCapacity,
		shutdownTimeout: defaultShutdownTimeout,
		coalesce:        make(map[model.JobKind]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(p.workerCount * p.queueCapacity))
	if p.logger == nil {
		p.logger = logger.Named("worker-pool")
	}
	return p
}

// Start launches the workers. Job contexts derive from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	p.queues = make([]*queue.InMemoryQueue, p.workerCount)
	p.workers = make([]*InMemoryWorker, p.workerCount)
	for i := range p.workers {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(p.queueCapacity))
		p.workers[i] = newWorker("worker-"+strconv.Itoa(i), p.queues[i], p.handler, p.pending, p.logger)
		go p.workers[i].Run(ctx)
	}
	p.running = true

	metrics.UpdateWorkerCount(p.workerCount)
	metrics.UpdateQueueCapacity(p.workerCount * p.queueCapacity)
	metrics.UpdateQueueSize(0)
	p.logger.Info(ctx, "worker pool started",
		logger.Int("workers", p.workerCount),
		logger.Int("queue_capacity", p.queueCapacity),
	)
}

// Shard returns the worker index for professionalID.
func Shard(professionalID int64, workers int) int {
	if workers <= 1 {
		return 0
	}
	var buf [20]byte
	return int(xxhash.Sum64(strconv.AppendInt(buf[:0], professionalID, 10)) % uint64(workers))
}

// Submit enqueues job on the worker owning its professional. It never
// blocks; a full queue yields queue.ErrFull. A job of a coalesced kind that
// is already queued for the same professional is dropped and Submit returns nil.
func (p *Pool) Submit(ctx context.Context, job model.Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrNotStarted
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}

	coalesce := p.coalesce[job.Kind]
	if coalesce && p.pending.SeenAndRecord(ctx, job.Key()) {
		metrics.RecordJobProcessed(string(job.Kind), "coalesced")
		return nil
	}
	if err := p.queues[Shard(job.ProfessionalID, len(p.queues))].Enqueue(ctx, job); err != nil {
		if coalesce {
			p.pending.Unrecord(ctx, job.Key())
		}
		return fmt.Errorf("submit %s for %d: %w", job.Kind, job.ProfessionalID, err)
	}
	metrics.UpdateQueueSize(p.lenLocked())
	return nil
}

// Len returns the number of queued jobs across all workers.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lenLocked()
}

func (p *Pool) lenLocked() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workerCount
}

// Running reports whether the pool accepts jobs.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Stop closes every queue and waits for queued jobs to finish, up to the
// shutdown timeout or until ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	for _, q := range p.queues {
		_ = q.Close()
	}
	workers := p.workers
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.shutdownTimeout)
	defer cancel()
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	metrics.UpdateQueueSize(0)
	p.logger.Info(ctx, "worker pool stopped")
	return nil
}
