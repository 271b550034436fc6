package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	"hls_transcode_service/pkg/database"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// bookkeepingTimeout queue / storage 清理使用的時限，不受 attempt 取消影響
const bookkeepingTimeout = time.Minute

// OrchestratorConfig 執行設定
type OrchestratorConfig struct {
	Renditions           []domain.Rendition
	ScratchDir           string
	AttemptTimeout       time.Duration
	RenditionParallelism int
}

// Orchestrator 執行一次轉碼嘗試：暫存 -> 轉碼 -> 上傳 -> 完成或失敗
type Orchestrator struct {
	queue      JobQueue
	store      database.ObjectStore
	encoder    Encoder
	stager     SourceStager
	notifier   Notifier
	attemptLog repository.AttemptLogRepo
	cfg        OrchestratorConfig
}

// NewOrchestrator notifier / attemptLog 可為 nil
func NewOrchestrator(
	queue JobQueue,
	store database.ObjectStore,
	encoder Encoder,
	stager SourceStager,
	notifier Notifier,
	attemptLog repository.AttemptLogRepo,
	cfg OrchestratorConfig,
) *Orchestrator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if attemptLog == nil {
		attemptLog = repository.NewMemoryAttemptLog()
	}
	if len(cfg.Renditions) == 0 {
		cfg.Renditions = domain.DefaultRenditions()
	}
	if cfg.RenditionParallelism <= 0 {
		cfg.RenditionParallelism = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Minute
	}
	return &Orchestrator{
		queue:      queue,
		store:      store,
		encoder:    encoder,
		stager:     stager,
		notifier:   notifier,
		attemptLog: attemptLog,
		cfg:        cfg,
	}
}

// attemptState 記錄目前階段與已上傳的 key，panic 時也能清理
type attemptState struct {
	mu       sync.Mutex
	stage    domain.Stage
	uploaded []string
	log      *logger.LogInfo
}

func (s *attemptState) enter(stage domain.Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
	s.log.Info("stage", zap.String("stage", string(stage)))
}

func (s *attemptState) current() domain.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *attemptState) track(key string) {
	s.mu.Lock()
	s.uploaded = append(s.uploaded, key)
	s.mu.Unlock()
}

func (s *attemptState) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploaded...)
}

// Run 執行一次嘗試並回報 queue，回傳此次嘗試的錯誤
func (o *Orchestrator) Run(ctx context.Context, job *domain.TranscodeJob) error {
	attempt := job.Attempts + 1
	state := &attemptState{
		log: logger.Log.With(zap.String("job_id", job.JobID), zap.Int("attempt", attempt)),
	}
	record := domain.AttemptRecord{JobID: job.JobID, Attempt: attempt, StartedAt: time.Now()}

	result, runErr := o.execute(ctx, job, attempt, state)

	// 結果回報不受 worker 停止影響
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	record.Stage = state.current()
	if runErr == nil {
		runErr = o.queue.Complete(bookCtx, job.JobID, result)
		if runErr == nil {
			state.enter(domain.StageSucceeded)
			record.Outcome = domain.StageSucceeded
			record.FinishedAt = time.Now()
			o.record(bookCtx, record)

			o.notifier.Notify(bookCtx, domain.CompletionEvent{
				JobID:         job.JobID,
				DestinationID: job.DestinationID,
				ManifestURL:   result.ManifestURL,
				CompletedAt:   record.FinishedAt,
			})
			return nil
		}
		state.log.Error("complete job failed", zap.Error(runErr))
		record.Outcome = domain.StageAttemptFailed
		record.Error = runErr.Error()
		record.FinishedAt = time.Now()
		o.record(bookCtx, record)
		return runErr
	}

	state.enter(domain.StageAttemptFailed)
	state.log.Warn("attempt failed", zap.String("failed_stage", string(record.Stage)), zap.Error(runErr))
	o.deleteKeys(bookCtx, state.keys(), state.log)

	outcome, err := o.queue.Fail(bookCtx, job.JobID, runErr)
	if err != nil {
		state.log.Error("mark job failed", zap.Error(err))
	} else if outcome.Terminal() {
		o.sweepDestination(bookCtx, job.DestinationID, state.log)
	}

	record.Outcome = domain.StageAttemptFailed
	record.Error = errprocess.Truncate(runErr.Error(), maxLastErrorLen)
	record.FinishedAt = time.Now()
	o.record(bookCtx, record)
	return runErr
}

// execute 所有路徑都會移除 workspace，panic 轉成錯誤
func (o *Orchestrator) execute(ctx context.Context, job *domain.TranscodeJob, attempt int, state *attemptState) (result domain.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			state.log.Error("panic during attempt", zap.Any("panic", r))
			err = fmt.Errorf("panic during %s: %v", state.current(), r)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	state.enter(domain.StageStarting)
	ws, err := NewWorkspace(o.cfg.ScratchDir, job.JobID, attempt)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			state.log.Warn("workspace cleanup failed", zap.Error(cerr))
		}
	}()

	result, err = o.pipeline(attemptCtx, job, ws, state)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, errprocess.ErrTimeout) {
		err = fmt.Errorf("%w: attempt exceeded %s: %v", errprocess.ErrTimeout, o.cfg.AttemptTimeout, err)
	}
	return result, err
}

func (o *Orchestrator) pipeline(ctx context.Context, job *domain.TranscodeJob, ws *Workspace, state *attemptState) (domain.JobResult, error) {
	state.enter(domain.StageStaging)
	input, err := o.stager.Stage(ctx, job.SourceURL, ws)
	if err != nil {
		return domain.JobResult{}, err
	}

	state.enter(domain.StageEncoding)
	outputs, err := o.encodeAll(ctx, input, ws)
	if err != nil {
		return domain.JobResult{}, err
	}

	state.enter(domain.StageUploading)
	artifacts, err := o.uploadAll(ctx, job.DestinationID, outputs, state)
	if err != nil {
		return domain.JobResult{}, err
	}

	state.enter(domain.StageFinalizing)
	masterKey := domain.MasterKey(job.DestinationID)
	master := BuildMasterPlaylist(o.cfg.Renditions, subtitlePlaylist(outputs))
	url, err := o.store.PutBytes(ctx, masterKey, []byte(master), domain.ContentType(domain.MasterManifestName))
	if err != nil {
		return domain.JobResult{}, err
	}
	state.track(masterKey)
	artifacts = append(artifacts, domain.Artifact{
		Key:         masterKey,
		URL:         url,
		ContentType: domain.ContentType(domain.MasterManifestName),
		Kind:        domain.ArtifactMaster,
	})

	return domain.JobResult{ManifestKey: masterKey, ManifestURL: url, Artifacts: artifacts}, nil
}

// encodeAll 任一畫質失敗會取消其他畫質，結果依設定順序排列
func (o *Orchestrator) encodeAll(ctx context.Context, input string, ws *Workspace) ([][]string, error) {
	outputs := make([][]string, len(o.cfg.Renditions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.RenditionParallelism)
	for i, r := range o.cfg.Renditions {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic encoding %s: %v", r.Name, p)
				}
			}()

			dir, err := ws.OutputDir(r.Name)
			if err != nil {
				return err
			}
			files, err := o.encoder.Encode(gctx, input, r, dir)
			if err != nil {
				return fmt.Errorf("rendition %s: %w", r.Name, err)
			}
			outputs[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// uploadAll 每個畫質先傳 segment 再傳 playlist
func (o *Orchestrator) uploadAll(ctx context.Context, destinationID string, outputs [][]string, state *attemptState) ([]domain.Artifact, error) {
	artifacts := []domain.Artifact{}
	seen := map[string]bool{}

	for _, files := range outputs {
		ordered := make([]string, 0, len(files))
		var playlists []string
		for _, f := range files {
			if strings.HasSuffix(f, ".m3u8") {
				playlists = append(playlists, f)
				continue
			}
			ordered = append(ordered, f)
		}
		ordered = append(ordered, playlists...)

		for _, f := range ordered {
			name := filepath.Base(f)
			key := domain.ArtifactKey(destinationID, name)
			if seen[key] {
				continue
			}
			contentType := domain.ContentType(name)
			url, err := o.store.Put(ctx, key, f, contentType)
			if err != nil {
				return nil, err
			}
			seen[key] = true
			state.track(key)
			artifacts = append(artifacts, domain.Artifact{
				Key:         key,
				URL:         url,
				ContentType: contentType,
				Kind:        domain.KindOf(name),
			})
		}
	}
	return artifacts, nil
}

// subtitlePlaylist 第一個帶出字幕的畫質的字幕 playlist
func subtitlePlaylist(outputs [][]string) string {
	for _, files := range outputs {
		for _, f := range files {
			if name := filepath.Base(f); strings.HasSuffix(name, "_vtt.m3u8") {
				return name
			}
		}
	}
	return ""
}

// deleteKeys best-effort
func (o *Orchestrator) deleteKeys(ctx context.Context, keys []string, log *logger.LogInfo) {
	for _, key := range keys {
		if err := o.store.Delete(ctx, key); err != nil {
			log.Warn("delete uploaded artifact failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// sweepDestination 只有在 destination 沒有成功過、也沒有其他 queued / active job 時才清空 prefix
func (o *Orchestrator) sweepDestination(ctx context.Context, destinationID string, log *logger.LogInfo) {
	inUse, err := o.queue.CountByDestination(ctx, destinationID, domain.JobCompleted, domain.JobQueued, domain.JobActive)
	if err != nil {
		log.Warn("count destination jobs failed, skip sweep", zap.Error(err))
		return
	}
	if inUse > 0 {
		log.Info("destination still in use, skip sweep", zap.String("destination_id", destinationID), zap.Int64("jobs", inUse))
		return
	}

	keys, err := o.store.List(ctx, domain.DestinationPrefix(destinationID))
	if err != nil {
		log.Warn("list destination failed, skip sweep", zap.Error(err))
		return
	}
	o.deleteKeys(ctx, keys, log)
	if len(keys) > 0 {
		log.Info("swept destination", zap.String("destination_id", destinationID), zap.Int("keys", len(keys)))
	}
}

func (o *Orchestrator) record(ctx context.Context, rec domain.AttemptRecord) {
	if err := o.attemptLog.Record(ctx, rec); err != nil {
		logger.Log.Warn("record attempt failed", zap.String("job_id", rec.JobID), zap.Error(err))
	}
}
