package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// JobRunner 執行一次 job attempt
type JobRunner interface {
	Run(ctx context.Context, job *domain.TranscodeJob) error
}

// WorkerPool N 個 goroutine 各自 Dequeue -> Run
type WorkerPool struct {
	queue        JobQueue
	runner       JobRunner
	workers      int
	pollInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool create WorkerPool
func NewWorkerPool(queue JobQueue, runner JobRunner, workers int, pollInterval time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &WorkerPool{
		queue:        queue,
		runner:       runner,
		workers:      workers,
		pollInterval: pollInterval,
	}
}

// Start 啟動 worker，重複呼叫無效
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	logger.Log.Info("worker pool started", zap.Int("workers", p.workers))
}

// Stop 取消並等待所有 worker 結束
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	logger.Log.Info("worker pool stopped")
}

func (p *WorkerPool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	log := logger.Log.With(zap.Int("worker", id))

	for ctx.Err() == nil {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("dequeue failed", zap.Error(err))
			}
			p.idle(ctx)
			continue
		}
		if job == nil {
			p.idle(ctx)
			continue
		}

		log.Info("job claimed", zap.String("job_id", job.JobID), zap.Int("attempt", job.Attempts+1))
		p.runSafe(ctx, job, log)
	}
}

// idle 等待新 job 通知或 pollInterval
func (p *WorkerPool) idle(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, p.pollInterval)
	defer cancel()
	_ = p.queue.WaitForJob(waitCtx)
}

// runSafe runner panic 時當作失敗的 attempt
func (p *WorkerPool) runSafe(ctx context.Context, job *domain.TranscodeJob, log *logger.LogInfo) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Error("panic while running job", zap.String("job_id", job.JobID), zap.Any("panic", r))

		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		if _, err := p.queue.Fail(failCtx, job.JobID, fmt.Errorf("panic: %v", r)); err != nil {
			log.Error("mark panicked job failed", zap.String("job_id", job.JobID), zap.Error(err))
		}
	}()

	if err := p.runner.Run(ctx, job); err != nil {
		log.Warn("job attempt finished with error", zap.String("job_id", job.JobID), zap.Error(err))
	}
}
