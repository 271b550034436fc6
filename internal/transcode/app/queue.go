package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	"hls_transcode_service/pkg/database"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxLastErrorLen last_error 欄位長度上限
const maxLastErrorLen = 2048

// JobQueue definition transcode job queue
type JobQueue interface {
	Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error)
	// Dequeue 沒有可執行的 job 時回傳 nil, nil
	Dequeue(ctx context.Context) (*domain.TranscodeJob, error)
	Complete(ctx context.Context, jobID string, result domain.JobResult) error
	Fail(ctx context.Context, jobID string, cause error) (domain.FailOutcome, error)
	GetStatus(ctx context.Context, jobID string) (domain.JobStatus, error)
	// ReclaimStale 將 active 超過 olderThan 的 job 視為逾時失敗
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
	// CountByDestination destination 在指定狀態的 job 數，states 為空時計算全部
	CountByDestination(ctx context.Context, destinationID string, states ...domain.JobState) (int64, error)
	// WaitForJob 等待新 job 通知或 ctx 結束
	WaitForJob(ctx context.Context) error
}

type jobQueue struct {
	repo      repository.JobRepo
	signal    repository.JobSignal
	cache     database.RedisRepository[domain.JobStatus]
	policy    domain.RetryPolicy
	statusTTL time.Duration
	now       func() time.Time
}

// QueueOption optional queue setting
type QueueOption func(*jobQueue)

// WithStatusCache GetStatus 先讀 redis
func WithStatusCache(cache database.RedisRepository[domain.JobStatus], ttl time.Duration) QueueOption {
	return func(q *jobQueue) {
		q.cache = cache
		if ttl > 0 {
			q.statusTTL = ttl
		}
	}
}

// WithClock 測試時固定時間
func WithClock(now func() time.Time) QueueOption {
	return func(q *jobQueue) {
		q.now = now
	}
}

// NewJobQueue create JobQueue
func NewJobQueue(repo repository.JobRepo, signal repository.JobSignal, policy domain.RetryPolicy, opts ...QueueOption) JobQueue {
	q := &jobQueue{
		repo:      repo,
		signal:    signal,
		policy:    policy,
		statusTTL: 10 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.signal == nil {
		q.signal = repository.NewChanSignal()
	}
	return q
}

func statusKey(jobID string) string {
	return "transcode:status:" + jobID
}

// Enqueue 驗證後寫入 queued job 並喚醒 worker
func (q *jobQueue) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	source := strings.TrimSpace(req.SourceURL)
	dest := strings.TrimSpace(req.DestinationID)
	if source == "" {
		return "", errprocess.Setf(errprocess.ErrInvalidInput, "sourceUrl is empty")
	}
	if err := domain.ValidateDestinationID(dest); err != nil {
		return "", errprocess.Setf(errprocess.ErrInvalidInput, "%v", err)
	}
	if req.Options.MaxAttempts < 0 {
		return "", errprocess.Setf(errprocess.ErrInvalidInput, "maxAttempts[%d] must not be negative", req.Options.MaxAttempts)
	}

	maxAttempts := q.policy.MaxAttempts
	if req.Options.MaxAttempts > 0 {
		maxAttempts = req.Options.MaxAttempts
	}

	now := q.now()
	job := &domain.TranscodeJob{
		JobID:         uuid.NewString(),
		SourceURL:     source,
		DestinationID: dest,
		State:         domain.JobQueued,
		MaxAttempts:   maxAttempts,
		AvailableAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := q.repo.Create(ctx, job); err != nil {
		return "", err
	}
	q.refreshStatus(ctx, job)

	if err := q.signal.Notify(ctx); err != nil {
		logger.Log.Warn("notify workers failed", zap.String("job_id", job.JobID), zap.Error(err))
	}

	logger.Log.Info("job enqueued",
		zap.String("job_id", job.JobID),
		zap.String("destination_id", dest),
		zap.Int("max_attempts", maxAttempts),
	)
	return job.JobID, nil
}

func (q *jobQueue) Dequeue(ctx context.Context) (*domain.TranscodeJob, error) {
	job, err := q.repo.ClaimNext(ctx, q.now())
	if err != nil || job == nil {
		return nil, err
	}
	q.refreshStatus(ctx, job)
	return job, nil
}

// Complete active -> completed
func (q *jobQueue) Complete(ctx context.Context, jobID string, result domain.JobResult) error {
	job, err := q.repo.GetByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State != domain.JobActive {
		return errprocess.Setf(errprocess.ErrInvalidState, "job[%s] is %s, not active", jobID, job.State)
	}

	job.State = domain.JobCompleted
	job.LastError = ""
	job.Result = &result
	if err := q.repo.UpdateFrom(ctx, job, domain.JobActive, job.Attempts); err != nil {
		return err
	}
	q.refreshStatus(ctx, job)
	return nil
}

// Fail 累加 attempts 後由 RetryPolicy 決定重新排隊或終止
func (q *jobQueue) Fail(ctx context.Context, jobID string, cause error) (domain.FailOutcome, error) {
	job, err := q.repo.GetByJobID(ctx, jobID)
	if err != nil {
		return domain.FailOutcome{}, err
	}
	if job.State != domain.JobActive {
		return domain.FailOutcome{}, errprocess.Setf(errprocess.ErrInvalidState, "job[%s] is %s, not active", jobID, job.State)
	}

	expectedAttempts := job.Attempts
	job.Attempts++
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	job.LastError = errprocess.Truncate(cause.Error(), maxLastErrorLen)
	job.ClaimedAt = nil

	policy := q.policy
	policy.MaxAttempts = job.MaxAttempts
	retry, delay := policy.Next(job.Attempts)
	if !errprocess.IsRetryable(cause) {
		retry, delay = false, 0
	}

	if retry {
		job.State = domain.JobQueued
		job.AvailableAt = q.now().Add(delay)
	} else {
		job.State = domain.JobFailed
	}

	if err := q.repo.UpdateFrom(ctx, job, domain.JobActive, expectedAttempts); err != nil {
		return domain.FailOutcome{}, err
	}
	q.refreshStatus(ctx, job)

	outcome := domain.FailOutcome{State: job.State, Attempts: job.Attempts, Delay: delay}
	if retry {
		logger.Log.Warn("job attempt failed, requeued",
			zap.String("job_id", jobID),
			zap.Int("attempts", job.Attempts),
			zap.Duration("delay", delay),
			zap.Error(cause),
		)
	} else {
		logger.Log.Error("job failed",
			zap.String("job_id", jobID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause),
		)
	}
	return outcome, nil
}

// GetStatus 先查快取，沒有時讀資料庫並回填
func (q *jobQueue) GetStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	if q.cache != nil {
		st, err := q.cache.Get(ctx, statusKey(jobID))
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, errprocess.ErrNotFound) {
			logger.Log.Warn("status cache read failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	job, err := q.repo.GetByJobID(ctx, jobID)
	if err != nil {
		return domain.JobStatus{}, err
	}
	q.fillStatus(ctx, job)
	return job.Status(), nil
}

func (q *jobQueue) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := q.repo.FindStaleActive(ctx, q.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, job := range stale {
		cause := errprocess.Wrap(errprocess.ErrTimeout, errors.New("worker claim expired"))
		if _, err := q.Fail(ctx, job.JobID, cause); err != nil {
			// 其他 worker 剛好完成或已回收
			if errors.Is(err, errprocess.ErrInvalidState) {
				continue
			}
			return reclaimed, err
		}
		reclaimed++
	}
	if reclaimed > 0 {
		logger.Log.Warn("reclaimed stale jobs", zap.Int("count", reclaimed))
	}
	return reclaimed, nil
}

func (q *jobQueue) CountByDestination(ctx context.Context, destinationID string, states ...domain.JobState) (int64, error) {
	return q.repo.CountByDestination(ctx, destinationID, states...)
}

func (q *jobQueue) WaitForJob(ctx context.Context) error {
	return q.signal.Wait(ctx)
}

// refreshStatus 狀態轉換後覆寫快取，寫入失敗時刪除舊值讓下次讀取回到資料庫
func (q *jobQueue) refreshStatus(ctx context.Context, job *domain.TranscodeJob) {
	if q.cache == nil {
		return
	}
	key := statusKey(job.JobID)
	if err := q.cache.Set(ctx, key, job.Status(), q.statusTTL); err != nil {
		logger.Log.Warn("status cache write failed", zap.String("job_id", job.JobID), zap.Error(err))
		if err := q.cache.Del(ctx, key); err != nil {
			logger.Log.Error("status cache invalidate failed", zap.String("job_id", job.JobID), zap.Error(err))
		}
	}
}

// fillStatus 讀取 miss 時回填，key 已存在代表期間有狀態轉換寫入較新的值
func (q *jobQueue) fillStatus(ctx context.Context, job *domain.TranscodeJob) {
	if q.cache == nil {
		return
	}
	if _, err := q.cache.SetNX(ctx, statusKey(job.JobID), job.Status(), q.statusTTL); err != nil {
		logger.Log.Warn("status cache fill failed", zap.String("job_id", job.JobID), zap.Error(err))
	}
}
