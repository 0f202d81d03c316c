// Package workers provides a bounded worker pool for executing scan jobs
// concurrently. It supports job queuing, optional rate limiting, graceful
// shutdown, and per-job result reporting.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redforge/riskscan/internal/logging"
)

// Job is a unit of work executed by a pool worker.
type Job interface {
	// Execute performs the job. The context is canceled when the pool
	// shuts down.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for logging.
	Type() string
}

// Result reports the outcome of one job execution.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
	Attempts int
}

// Config holds worker pool configuration.
type Config struct {
	// Size is the number of worker goroutines.
	Size int `yaml:"size" json:"size"`
	// QueueSize is the maximum number of queued jobs.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// MaxRetries is the number of retries after a failed attempt.
	// Scan jobs run with 0: a failed scan is recorded, never re-run.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RetryDelay is the pause between attempts when retries are enabled.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// ShutdownTimeout bounds the wait for in-flight jobs during shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// RateLimit caps job starts per second. Zero disables the limit.
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`
}

// DefaultConfig returns the pool configuration used for scan execution.
func DefaultConfig() Config {
	return Config{
		Size:            4,
		QueueSize:       64,
		MaxRetries:      0,
		RetryDelay:      5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimit:       0,
	}
}

// Pool manages a fixed set of worker goroutines consuming a shared queue.
type Pool struct {
	config          Config
	jobs            chan Job
	results         chan Result
	externalResults chan Result
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
	rateLimiter     *time.Ticker
	startOnce       sync.Once
	closeOnce       sync.Once
	stopped         int32
}

// New creates a worker pool. Call Start before submitting jobs.
func New(config Config) *Pool {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		config:          config,
		jobs:            make(chan Job, config.QueueSize),
		results:         make(chan Result, config.QueueSize),
		externalResults: make(chan Result, config.QueueSize+config.Size),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	if config.RateLimit > 0 {
		p.rateLimiter = time.NewTicker(time.Second / time.Duration(config.RateLimit))
	}

	return p
}

// Start launches the workers and the result fan-out loop.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Info("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.runWorker(i)
		}

		go p.forwardResults()
	})
}

// Submit queues a job for execution. It returns an error when the pool is
// shut down or the queue is full; it never blocks.
func (p *Pool) Submit(job Job) error {
	if atomic.LoadInt32(&p.stopped) == 1 {
		return fmt.Errorf("worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		logging.Debug("Job queued",
			"job_id", job.ID(),
			"job_type", job.Type())
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
		return fmt.Errorf("job queue is full")
	}
}

// Results returns the channel carrying job outcomes. The channel is closed
// during shutdown.
func (p *Pool) Results() <-chan Result {
	return p.externalResults
}

// QueueDepth reports the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Shutdown stops accepting jobs, cancels in-flight job contexts after the
// queue drains or the timeout elapses, and closes the result channels.
func (p *Pool) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return nil
	}

	logging.Info("Shutting down worker pool")
	close(p.jobs)

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logging.Info("Worker pool drained")
	case <-time.After(p.config.ShutdownTimeout):
		logging.Warn("Worker pool shutdown timeout, canceling in-flight jobs")
		p.cancel()
		<-finished
	}

	p.cancel()
	close(p.results)

	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}

	<-p.done
	return nil
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	logging.Debug("Worker started", "worker_id", id)
	defer logging.Debug("Worker stopped", "worker_id", id)

	for job := range p.jobs {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		p.executeJob(id, job)
	}
}

func (p *Pool) executeJob(workerID int, job Job) {
	if p.rateLimiter != nil {
		select {
		case <-p.rateLimiter.C:
		case <-p.ctx.Done():
			return
		}
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		attempts = attempt + 1
		start := time.Now()
		err := job.Execute(p.ctx)
		duration := time.Since(start)

		if err == nil {
			p.results <- Result{
				JobID:    job.ID(),
				JobType:  job.Type(),
				Duration: duration,
				Attempts: attempts,
			}
			logging.Debug("Job completed",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"duration", duration,
				"worker_id", workerID)
			return
		}

		lastErr = err
		if attempt < p.config.MaxRetries {
			logging.Debug("Job failed, retrying",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"attempt", attempts,
				"error", err)
			select {
			case <-time.After(p.config.RetryDelay):
			case <-p.ctx.Done():
				return
			}
		}
	}

	p.results <- Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    lastErr,
		Attempts: attempts,
	}
	logging.Error("Job failed",
		"job_id", job.ID(),
		"job_type", job.Type(),
		"attempts", attempts,
		"error", lastErr,
		"worker_id", workerID)
}

// forwardResults fans results out to external consumers without letting a
// slow consumer block the workers.
func (p *Pool) forwardResults() {
	defer p.closeOnce.Do(func() {
		close(p.externalResults)
		close(p.done)
	})

	for result := range p.results {
		select {
		case p.externalResults <- result:
		default:
			// Consumer not reading, drop the copy. Workers already
			// persisted the outcome before reporting it here.
		}
	}
}

// ScanJob adapts a scan execution closure to the Job interface.
type ScanJob struct {
	id  string
	run func(ctx context.Context) error
}

// NewScanJob wraps a scan execution function identified by the scan ID.
func NewScanJob(id string, run func(ctx context.Context) error) *ScanJob {
	return &ScanJob{id: id, run: run}
}

// Execute implements the Job interface.
func (j *ScanJob) Execute(ctx context.Context) error {
	return j.run(ctx)
}

// ID implements the Job interface.
func (j *ScanJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *ScanJob) Type() string {
	return "scan"
}
