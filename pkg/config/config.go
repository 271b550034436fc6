package config

import (
	"time"

	"hls_transcode_service/internal/transcode/domain"
)

// TranscodeAPI definition transcode_api YAML structure
type TranscodeAPI struct {
	Port string `mapstructure:"port"`
	IP   string `mapstructure:"ip"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`
	MongoDB    DatabaseConfig `mapstructure:"mongo"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	JWT        JWTConfig      `mapstructure:"jwt"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
}

// TranscodeWorker definition transcode_worker YAML structure
type TranscodeWorker struct {
	IP         string `mapstructure:"ip"`
	HealthPort string `mapstructure:"health_port"`

	PostgreSQL  DatabaseConfig    `mapstructure:"pg"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MongoDB     DatabaseConfig    `mapstructure:"mongo"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// RedisConfig definition redis setting，Addr 為空時走 sentinel (.env)
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	RedisDB   int           `mapstructure:"redis_db"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
	Channel   string        `mapstructure:"channel"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition object storage setting
type MinIOConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	BucketName   string `mapstructure:"bucket_name"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	CDNBaseURL   string `mapstructure:"cdn_base_url"`
	CacheControl string `mapstructure:"cache_control"`

	RetryInterval int `mapstructure:"retry_interval"`
	RetryCount    int `mapstructure:"retry_count"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string `mapstructure:"ip"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Queue         string `mapstructure:"queue"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// JWTConfig definition service token setting
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// MaintenanceConfig 定期清理設定
type MaintenanceConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ScratchMaxAge time.Duration `mapstructure:"scratch_max_age"`
	ReclaimGrace  time.Duration `mapstructure:"reclaim_grace"`
}

// RenditionConfig 單一畫質設定
type RenditionConfig struct {
	Name           string `mapstructure:"name"`
	Width          int    `mapstructure:"width"`
	Height         int    `mapstructure:"height"`
	VideoBitrate   string `mapstructure:"video_bitrate"`
	AudioBitrate   string `mapstructure:"audio_bitrate"`
	SegmentSeconds int    `mapstructure:"segment_seconds"`
}

// PipelineConfig 轉碼流程設定，未設定的欄位走預設值
type PipelineConfig struct {
	Workers              int               `mapstructure:"workers"`
	MaxParallelEncodes   int               `mapstructure:"max_parallel_encodes"`
	RenditionParallelism int               `mapstructure:"rendition_parallelism"`
	MaxAttempts          int               `mapstructure:"max_attempts"`
	BaseDelay            time.Duration     `mapstructure:"base_delay"`
	MaxDelay             time.Duration     `mapstructure:"max_delay"`
	AttemptTimeout       time.Duration     `mapstructure:"attempt_timeout"`
	PollInterval         time.Duration     `mapstructure:"poll_interval"`
	ScratchDir           string            `mapstructure:"scratch_dir"`
	FFmpegPath           string            `mapstructure:"ffmpeg_path"`
	Renditions           []RenditionConfig `mapstructure:"renditions"`
}

// Policy 由設定產生重試策略
func (p PipelineConfig) Policy() domain.RetryPolicy {
	policy := domain.DefaultRetryPolicy()
	if p.MaxAttempts > 0 {
		policy.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay > 0 {
		policy.BaseDelay = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		policy.MaxDelay = p.MaxDelay
	}
	return policy
}

// RenditionSet 沒設定時回傳預設 240p/480p/720p
func (p PipelineConfig) RenditionSet() []domain.Rendition {
	if len(p.Renditions) == 0 {
		return domain.DefaultRenditions()
	}
	set := make([]domain.Rendition, 0, len(p.Renditions))
	for _, r := range p.Renditions {
		seg := r.SegmentSeconds
		if seg <= 0 {
			seg = domain.DefaultSegmentSeconds
		}
		set = append(set, domain.Rendition{
			Name:           r.Name,
			Width:          r.Width,
			Height:         r.Height,
			VideoBitrate:   r.VideoBitrate,
			AudioBitrate:   r.AudioBitrate,
			SegmentSeconds: seg,
		})
	}
	return set
}

// WithDefaults fill zero values
func (p PipelineConfig) WithDefaults() PipelineConfig {
	if p.Workers <= 0 {
		p.Workers = 2
	}
	if p.MaxParallelEncodes <= 0 {
		p.MaxParallelEncodes = 2
	}
	if p.RenditionParallelism <= 0 {
		p.RenditionParallelism = 1
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 30 * time.Minute
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 2 * time.Second
	}
	if p.ScratchDir == "" {
		p.ScratchDir = "./tmp/transcode"
	}
	if p.FFmpegPath == "" {
		p.FFmpegPath = "ffmpeg"
	}
	return p
}

// WithDefaults fill zero values
func (m MaintenanceConfig) WithDefaults() MaintenanceConfig {
	if m.Interval <= 0 {
		m.Interval = 10 * time.Minute
	}
	if m.ScratchMaxAge <= 0 {
		m.ScratchMaxAge = 6 * time.Hour
	}
	if m.ReclaimGrace <= 0 {
		m.ReclaimGrace = 5 * time.Minute
	}
	return m
}
