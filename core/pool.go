package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/camera-pipeline/config"
	apperrors "github.com/Skryldev/camera-pipeline/errors"
)

// Pool runs submitted jobs on a fixed set of workers.  Each job is one
// sequential invocation; the pool only decides where it runs.
type Pool struct {
	cfg config.Config

	mu     sync.RWMutex
	logger Logger

	jobQueue  chan Job
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// NewPool creates a Pool.  Call Start() before submitting jobs; call Stop()
// when done.
func NewPool(cfg config.Config) *Pool {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		cfg:      cfg,
		logger:   NopLogger{},
		jobQueue: make(chan Job, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Pool) SetLogger(l Logger) {
	if l == nil {
		l = NopLogger{}
	}
	p.mu.Lock()
	p.logger = l
	p.mu.Unlock()
}

func (p *Pool) log() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger
}

// Start launches the workers.  It is idempotent.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		workerCount := p.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers after their current job.  Jobs still queued
// are reported to their result channels as cancelled.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
		p.wg.Wait()
		for {
			select {
			case job := <-p.jobQueue:
				p.reject(job, context.Canceled)
			default:
				return
			}
		}
	})
}

// Submit enqueues an async job.  Returns ErrWorkerPoolFull if the queue is full.
func (p *Pool) Submit(job Job) error {
	if job.Task == nil {
		return apperrors.New(apperrors.CategoryPrecondition, "submit", fmt.Errorf("job %q has no task", job.ID))
	}
	select {
	case <-p.shutdown:
		return apperrors.New(apperrors.CategoryPipeline, "submit", context.Canceled)
	default:
	}
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolFull)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job := <-p.jobQueue:
			p.processJob(job)
		}
	}
}

func (p *Pool) processJob(job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := p.cfg.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := job.Task(ctx)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.log().Warn("pool.job.error", "job", job.ID, "error", err.Error())
	} else {
		atomic.AddInt64(&p.processedCount, 1)
	}
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Result: result, Err: err}
	}
}

// reject reports a dropped job without blocking Stop on a channel nobody
// reads.
func (p *Pool) reject(job Job, cause error) {
	atomic.AddInt64(&p.errorCount, 1)
	if job.ResultCh == nil {
		return
	}
	select {
	case job.ResultCh <- JobResult{JobID: job.ID, Err: apperrors.New(apperrors.CategoryPipeline, "pool.stop", cause)}:
	default:
		p.log().Warn("pool.job.dropped", "job", job.ID)
	}
}

// ProcessedCount returns the number of jobs that completed without error.
func (p *Pool) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the number of jobs that failed or were dropped.
func (p *Pool) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
