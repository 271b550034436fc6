package repository

import (
	"context"
	"errors"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	errprocess "hls_transcode_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepo definition transcode job persistence
type JobRepo interface {
	AutoMigrate() error
	Create(ctx context.Context, job *domain.TranscodeJob) error
	GetByJobID(ctx context.Context, jobID string) (*domain.TranscodeJob, error)
	// ClaimNext 領取一筆可執行的 queued job 並改為 active，沒有時回傳 nil, nil
	ClaimNext(ctx context.Context, now time.Time) (*domain.TranscodeJob, error)
	// UpdateFrom 只在資料庫中的 state / attempts 與預期相同時寫入
	UpdateFrom(ctx context.Context, job *domain.TranscodeJob, expected domain.JobState, expectedAttempts int) error
	FindStaleActive(ctx context.Context, claimedBefore time.Time) ([]domain.TranscodeJob, error)
	CountByDestination(ctx context.Context, destinationID string, states ...domain.JobState) (int64, error)
}

type jobRepo struct {
	db *gorm.DB
}

// NewJobRepo create postgres JobRepo
func NewJobRepo(db *gorm.DB) JobRepo {
	return &jobRepo{db: db}
}

func (r *jobRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.TranscodeJob{})
}

func (r *jobRepo) Create(ctx context.Context, job *domain.TranscodeJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return errprocess.Wrap(errprocess.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *jobRepo) GetByJobID(ctx context.Context, jobID string) (*domain.TranscodeJob, error) {
	var job domain.TranscodeJob
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errprocess.ErrNotFound
	}
	if err != nil {
		return nil, errprocess.Wrap(errprocess.ErrStorageUnavailable, err)
	}
	return &job, nil
}

// ClaimNext 使用 SELECT ... FOR UPDATE SKIP LOCKED，多個 worker 同時領取時不會拿到同一筆
func (r *jobRepo) ClaimNext(ctx context.Context, now time.Time) (*domain.TranscodeJob, error) {
	var claimed *domain.TranscodeJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobs []domain.TranscodeJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ? AND available_at <= ?", domain.JobQueued, now).
			Order("available_at ASC, id ASC").
			Limit(1).
			Find(&jobs).Error
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		job := jobs[0]
		err = tx.Model(&domain.TranscodeJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"state":      domain.JobActive,
				"claimed_at": now,
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}

		job.State = domain.JobActive
		job.ClaimedAt = &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, errprocess.Wrap(errprocess.ErrStorageUnavailable, err)
	}
	return claimed, nil
}

func (r *jobRepo) UpdateFrom(ctx context.Context, job *domain.TranscodeJob, expected domain.JobState, expectedAttempts int) error {
	job.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&domain.TranscodeJob{}).
		Where("job_id = ? AND state = ? AND attempts = ?", job.JobID, expected, expectedAttempts).
		Updates(map[string]interface{}{
			"state":        job.State,
			"attempts":     job.Attempts,
			"last_error":   job.LastError,
			"result":       job.Result,
			"available_at": job.AvailableAt,
			"claimed_at":   job.ClaimedAt,
			"updated_at":   job.UpdatedAt,
		})
	if res.Error != nil {
		return errprocess.Wrap(errprocess.ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByJobID(ctx, job.JobID); err != nil {
			return err
		}
		return errprocess.ErrInvalidState
	}
	return nil
}

func (r *jobRepo) FindStaleActive(ctx context.Context, claimedBefore time.Time) ([]domain.TranscodeJob, error) {
	var jobs []domain.TranscodeJob
	err := r.db.WithContext(ctx).
		Where("state = ? AND claimed_at < ?", domain.JobActive, claimedBefore).
		Find(&jobs).Error
	if err != nil {
		return nil, errprocess.Wrap(errprocess.ErrStorageUnavailable, err)
	}
	return jobs, nil
}

// CountByDestination states 為空時計算全部狀態
func (r *jobRepo) CountByDestination(ctx context.Context, destinationID string, states ...domain.JobState) (int64, error) {
	var n int64
	tx := r.db.WithContext(ctx).Model(&domain.TranscodeJob{}).Where("destination_id = ?", destinationID)
	if len(states) > 0 {
		tx = tx.Where("state IN ?", states)
	}
	err := tx.Count(&n).Error
	if err != nil {
		return 0, errprocess.Wrap(errprocess.ErrStorageUnavailable, err)
	}
	return n, nil
}
