package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"hls_transcode_service/internal/transcode/domain"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// stderrTailSize EncodeError 保留的 stderr 長度
	stderrTailSize = 2048
	// gopSize 固定 keyframe 間隔，讓各畫質的分段對齊
	gopSize = 48
)

// execCommand 測試時替換
var execCommand = exec.CommandContext

// Encoder 單一畫質轉碼
type Encoder interface {
	// Encode 只寫入 outputDir，回傳產出檔案的路徑
	Encode(ctx context.Context, inputPath string, r domain.Rendition, outputDir string) ([]string, error)
	// Probe 確認 ffmpeg 可以執行
	Probe(ctx context.Context) error
}

// FFmpegEncoder 以 ffmpeg 子行程轉成 HLS
type FFmpegEncoder struct {
	path      string
	sem       *semaphore.Weighted
	subtitles bool
}

// NewFFmpegEncoder maxParallel 為整個 process 同時執行的 ffmpeg 數量上限
func NewFFmpegEncoder(path string, maxParallel int) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &FFmpegEncoder{
		path:      path,
		sem:       semaphore.NewWeighted(int64(maxParallel)),
		subtitles: true,
	}
}

// WithoutSubtitles 不帶出字幕軌
func (e *FFmpegEncoder) WithoutSubtitles() *FFmpegEncoder {
	e.subtitles = false
	return e
}

func (e *FFmpegEncoder) Probe(ctx context.Context) error {
	out, err := execCommand(ctx, e.path, "-hide_banner", "-version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg[%s] not available: %w: %s", e.path, err, errprocess.Truncate(string(out), 256))
	}
	return nil
}

func (e *FFmpegEncoder) Encode(ctx context.Context, inputPath string, r domain.Rendition, outputDir string) ([]string, error) {
	if err := r.Validate(); err != nil {
		return nil, errprocess.Wrap(errprocess.ErrInvalidInput, err)
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, contextError(ctx, r.Name)
	}
	defer e.sem.Release(1)

	err := e.run(ctx, inputPath, r, outputDir, e.subtitles)
	var encErr *errprocess.EncodeError
	if err != nil && e.subtitles && errors.As(err, &encErr) && isSubtitleFailure(encErr.StderrExcerpt) {
		// bitmap 字幕 (PGS / DVB) 無法轉成 webvtt，改成不帶字幕
		logger.Log.Warn("subtitle encoding failed, retry without subtitles",
			zap.String("rendition", r.Name),
			zap.String("stderr", encErr.StderrExcerpt),
		)
		if cerr := clearOutputDir(outputDir); cerr != nil {
			return nil, errprocess.Wrap(errprocess.ErrWorkspace, cerr)
		}
		err = e.run(ctx, inputPath, r, outputDir, false)
	}
	if err != nil {
		return nil, err
	}

	files, err := listOutputFiles(outputDir)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.ErrWorkspace, err)
	}
	if len(files) == 0 {
		return nil, &errprocess.EncodeError{ExitCode: 0, StderrExcerpt: "no output files"}
	}

	logger.Log.Debug("ffmpeg done", zap.String("rendition", r.Name), zap.Int("files", len(files)))
	return files, nil
}

func (e *FFmpegEncoder) run(ctx context.Context, inputPath string, r domain.Rendition, outputDir string, subtitles bool) error {
	args := buildHLSArgs(inputPath, r, outputDir, subtitles)
	logger.Log.Debug("ffmpeg start", zap.String("rendition", r.Name), zap.Strings("args", args))

	stderr := newTailBuffer(stderrTailSize)
	cmd := execCommand(ctx, e.path, args...)
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return contextError(ctx, r.Name)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &errprocess.EncodeError{ExitCode: exitErr.ExitCode(), StderrExcerpt: stderr.String()}
		}
		return &errprocess.EncodeError{ExitCode: -1, StderrExcerpt: err.Error()}
	}
	return nil
}

// isSubtitleFailure ffmpeg 在字幕編碼失敗時的訊息都會提到 subtitle
func isSubtitleFailure(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "subtitle")
}

// clearOutputDir 移除失敗那次留下的部分輸出
func clearOutputDir(outputDir string) error {
	files, err := listOutputFiles(outputDir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

// contextError 逾時轉成 ErrTimeout，其餘保留 ctx 錯誤
func contextError(ctx context.Context, rendition string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: encoding %s", errprocess.ErrTimeout, rendition)
	}
	return fmt.Errorf("encoding %s: %w", rendition, ctx.Err())
}

// buildHLSArgs scale + pad letterbox，固定 GOP，vod playlist
func buildHLSArgs(inputPath string, r domain.Rendition, outputDir string, subtitles bool) []string {
	vb, _ := domain.ParseBitrate(r.VideoBitrate)
	w, h := strconv.Itoa(r.Width), strconv.Itoa(r.Height)
	filter := fmt.Sprintf(
		"scale=%s:%s:force_original_aspect_ratio=decrease,pad=%s:%s:(ow-iw)/2:(oh-ih)/2,setsar=1",
		w, h, w, h,
	)

	args := []string{
		"-hide_banner", "-y",
		"-i", inputPath,
		"-map", "0:v:0",
		"-map", "0:a?",
	}
	if subtitles {
		args = append(args, "-map", "0:s?")
	}
	args = append(args,
		"-vf", filter,
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-profile:v", "main",
		"-preset", "veryfast",
		"-b:v", r.VideoBitrate,
		"-maxrate", r.VideoBitrate,
		"-bufsize", strconv.Itoa(vb*2),
		"-g", strconv.Itoa(gopSize),
		"-keyint_min", strconv.Itoa(gopSize),
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", r.AudioBitrate,
		"-ar", "48000",
		"-ac", "2",
	)
	if subtitles {
		args = append(args, "-c:s", "webvtt")
	}
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(r.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, r.SegmentPattern()),
		filepath.Join(outputDir, r.ManifestName()),
	)
	return args
}

// listOutputFiles outputDir 底下的一般檔案，依檔名排序
func listOutputFiles(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(outputDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// tailBuffer 只保留最後 max bytes
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		// 不從多 byte 字元中間開始
		for over < len(t.buf) && !utf8.RuneStart(t.buf[over]) {
			over++
		}
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String ffmpeg 輸出的非法 byte 直接丟掉
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.ToValidUTF8(string(t.buf), "")
}
