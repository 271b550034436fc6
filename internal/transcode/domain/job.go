package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// QueueName RabbitMQ 轉碼請求 queue name
	QueueName = "transcode"
	// SignalChannel postgres LISTEN/NOTIFY channel
	SignalChannel = "transcode_jobs"
)

// JobState definition job state
type JobState string

const (
	// JobQueued 等待 worker 領取
	JobQueued JobState = "queued"
	// JobActive 已被某個 worker 領取
	JobActive JobState = "active"
	// JobCompleted 所有畫質上傳完成
	JobCompleted JobState = "completed"
	// JobFailed 重試用盡或不可重試的錯誤
	JobFailed JobState = "failed"
)

// IsTerminal completed / failed 之後不再變更
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Stage 單次執行的階段
type Stage string

const (
	StageStarting      Stage = "starting"
	StageStaging       Stage = "staging"
	StageEncoding      Stage = "encoding"
	StageUploading     Stage = "uploading"
	StageFinalizing    Stage = "finalizing"
	StageSucceeded     Stage = "succeeded"
	StageAttemptFailed Stage = "attempt_failed"
)

// TranscodeJob 定義轉碼工作
type TranscodeJob struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	JobID         string     `gorm:"uniqueIndex;size:64;not null" json:"jobId"`
	SourceURL     string     `gorm:"not null" json:"sourceUrl"`
	DestinationID string     `gorm:"index;not null" json:"destinationId"`
	State         JobState   `gorm:"index:idx_state_available;size:16;not null" json:"state"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts   int        `gorm:"not null" json:"maxAttempts"`
	LastError     string     `json:"lastError,omitempty"`
	Result        *JobResult `gorm:"type:jsonb" json:"result,omitempty"`
	AvailableAt   time.Time  `gorm:"index:idx_state_available;not null" json:"availableAt"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName gorm table name
func (TranscodeJob) TableName() string {
	return "transcode_jobs"
}

// Status 回傳對外的狀態快照
func (j *TranscodeJob) Status() JobStatus {
	return JobStatus{
		JobID:         j.JobID,
		DestinationID: j.DestinationID,
		State:         j.State,
		Attempts:      j.Attempts,
		LastError:     j.LastError,
		Result:        j.Result,
		UpdatedAt:     j.UpdatedAt,
	}
}

// JobResult 成功時的產出
type JobResult struct {
	ManifestKey string     `json:"manifestKey"`
	ManifestURL string     `json:"manifestUrl"`
	Artifacts   []Artifact `json:"artifacts"`
}

// Value 存成 jsonb
func (r JobResult) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 從 jsonb 讀回
func (r *JobResult) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported JobResult source %T", src)
	}
}

// JobStatus status api response
type JobStatus struct {
	JobID         string     `json:"jobId"`
	DestinationID string     `json:"destinationId,omitempty"`
	State         JobState   `json:"state"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError"`
	Result        *JobResult `json:"result"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// EnqueueOptions 額外選項
type EnqueueOptions struct {
	// MaxAttempts 0 表示使用設定值
	MaxAttempts int `json:"maxAttempts,omitempty"`
}

// EnqueueRequest 建立轉碼工作的請求，HTTP 與 RabbitMQ 共用
type EnqueueRequest struct {
	SourceURL     string         `json:"source_url"`
	DestinationID string         `json:"destination_id"`
	Options       EnqueueOptions `json:"options,omitempty"`
}

// FailOutcome Fail 之後 job 的狀態
type FailOutcome struct {
	State    JobState
	Attempts int
	Delay    time.Duration
}

// Terminal job 已經 failed
func (o FailOutcome) Terminal() bool {
	return o.State == JobFailed
}

// CompletionEvent 轉碼完成通知
type CompletionEvent struct {
	JobID         string    `json:"jobId"`
	DestinationID string    `json:"destinationId"`
	ManifestURL   string    `json:"manifestUrl"`
	CompletedAt   time.Time `json:"completedAt"`
}

// AttemptRecord 單次執行紀錄
type AttemptRecord struct {
	JobID      string    `bson:"job_id" json:"jobId"`
	Attempt    int       `bson:"attempt" json:"attempt"`
	Stage      Stage     `bson:"stage" json:"stage"`
	Outcome    Stage     `bson:"outcome" json:"outcome"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
	StartedAt  time.Time `bson:"started_at" json:"startedAt"`
	FinishedAt time.Time `bson:"finished_at" json:"finishedAt"`
}
