package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type job struct {
	id    string // correlates pool logs for one task
	docID int64
}

// Pool runs document processing on a fixed set of resident goroutines fed by
// a buffered queue. Submit never blocks: when the queue is full a one-off
// goroutine is spawned instead, so the upload path is isolated from OCR
// latency at the cost of unbounded concurrency under burst.
type Pool struct {
	processor *Processor
	jobs      chan job
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	workers sync.WaitGroup // resident workers
	tasks   sync.WaitGroup // in-flight jobs, resident or overflow
}

// NewPool creates a pool with count resident workers and a queue of queueSize.
func NewPool(processor *Processor, count, queueSize int, logger *zap.Logger) *Pool {
	if count <= 0 {
		count = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		processor: processor,
		jobs:      make(chan job, queueSize),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < count; i++ {
		p.workers.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.workers.Done()
	for j := range p.jobs {
		p.process(j)
	}
}

func (p *Pool) process(j job) {
	defer p.tasks.Done()
	log := p.logger.With(zap.String("job", j.id), zap.Int64("id", j.docID))
	log.Debug("processing started")
	p.processor.Process(p.ctx, j.docID)
	log.Debug("processing finished")
}

// Submit schedules processing for a document id and returns immediately.
// The caller gets no handle on the task's outcome. Submissions after Stop
// are dropped with a log entry.
func (p *Pool) Submit(docID int64) {
	j := job{id: uuid.NewString(), docID: docID}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("pool stopped, dropping job", zap.Int64("id", docID))
		return
	}
	p.tasks.Add(1)
	select {
	case p.jobs <- j:
		p.mu.Unlock()
	default:
		// Queue full: run as an unpooled goroutine rather than block.
		p.mu.Unlock()
		go p.process(j)
	}
	p.logger.Debug("job scheduled", zap.String("job", j.id), zap.Int64("id", docID))
}

// Stop rejects further submissions and waits for in-flight work to finish,
// up to ctx's deadline. Work still running past the deadline is cancelled
// through the pool context.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.tasks.Wait()
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
