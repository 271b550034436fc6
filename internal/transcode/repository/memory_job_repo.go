package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	errprocess "hls_transcode_service/pkg/err"
)

// memoryJobRepo 單機版 queue，local 模式與測試使用
type memoryJobRepo struct {
	mu   sync.Mutex
	seq  uint
	jobs map[string]*domain.TranscodeJob
}

// NewMemoryJobRepo create in-memory JobRepo
func NewMemoryJobRepo() JobRepo {
	return &memoryJobRepo{jobs: make(map[string]*domain.TranscodeJob)}
}

func (r *memoryJobRepo) AutoMigrate() error {
	return nil
}

func (r *memoryJobRepo) Create(_ context.Context, job *domain.TranscodeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.JobID]; ok {
		return errprocess.Setf(errprocess.ErrInvalidInput, "jobID[%s] 已存在", job.JobID)
	}
	r.seq++
	job.ID = r.seq
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	cp := *job
	r.jobs[job.JobID] = &cp
	return nil
}

func (r *memoryJobRepo) GetByJobID(_ context.Context, jobID string) (*domain.TranscodeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, errprocess.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *memoryJobRepo) ClaimNext(_ context.Context, now time.Time) (*domain.TranscodeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*domain.TranscodeJob
	for _, job := range r.jobs {
		if job.State == domain.JobQueued && !job.AvailableAt.After(now) {
			ready = append(ready, job)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].AvailableAt.Equal(ready[j].AvailableAt) {
			return ready[i].ID < ready[j].ID
		}
		return ready[i].AvailableAt.Before(ready[j].AvailableAt)
	})

	job := ready[0]
	claimedAt := now
	job.State = domain.JobActive
	job.ClaimedAt = &claimedAt
	job.UpdatedAt = now

	cp := *job
	return &cp, nil
}

func (r *memoryJobRepo) UpdateFrom(_ context.Context, job *domain.TranscodeJob, expected domain.JobState, expectedAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.jobs[job.JobID]
	if !ok {
		return errprocess.ErrNotFound
	}
	if cur.State != expected || cur.Attempts != expectedAttempts {
		return errprocess.ErrInvalidState
	}

	job.UpdatedAt = time.Now()
	cp := *job
	cp.ID = cur.ID
	cp.CreatedAt = cur.CreatedAt
	r.jobs[job.JobID] = &cp
	return nil
}

func (r *memoryJobRepo) FindStaleActive(_ context.Context, claimedBefore time.Time) ([]domain.TranscodeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []domain.TranscodeJob
	for _, job := range r.jobs {
		if job.State == domain.JobActive && job.ClaimedAt != nil && job.ClaimedAt.Before(claimedBefore) {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (r *memoryJobRepo) CountByDestination(_ context.Context, destinationID string, states ...domain.JobState) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, job := range r.jobs {
		if job.DestinationID == destinationID && (len(states) == 0 || slices.Contains(states, job.State)) {
			n++
		}
	}
	return n, nil
}
