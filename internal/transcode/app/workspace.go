package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	createDir = func(path string) error {
		return os.MkdirAll(path, 0o755)
	}
	removeAll = os.RemoveAll
	readDir   = os.ReadDir
)

// Workspace 單次執行專用的暫存目錄
type Workspace struct {
	Root string
}

// NewWorkspace {base}/{jobID}_{attempt}_{uuid}
func NewWorkspace(base, jobID string, attempt int) (*Workspace, error) {
	root := filepath.Join(base, fmt.Sprintf("%s_%d_%s", jobID, attempt, uuid.NewString()))
	if err := createDir(root); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", errprocess.ErrWorkspace, root, err)
	}
	return &Workspace{Root: root}, nil
}

// SourcePath 下載來源影片的位置
func (w *Workspace) SourcePath(ext string) string {
	if ext == "" {
		ext = ".src"
	}
	return filepath.Join(w.Root, "source"+ext)
}

// OutputDir 建立並回傳某個畫質的輸出目錄
func (w *Workspace) OutputDir(rendition string) (string, error) {
	dir := filepath.Join(w.Root, "out", rendition)
	if err := createDir(dir); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", errprocess.ErrWorkspace, dir, err)
	}
	return dir, nil
}

// Cleanup 移除整個目錄，重複呼叫無副作用
func (w *Workspace) Cleanup() error {
	if w == nil || w.Root == "" {
		return nil
	}
	if err := removeAll(w.Root); err != nil {
		return fmt.Errorf("%w: remove %s: %v", errprocess.ErrWorkspace, w.Root, err)
	}
	return nil
}

// SweepScratch 刪除 base 底下超過 maxAge 的殘留目錄
func SweepScratch(base string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := readDir(base)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errprocess.Wrap(errprocess.ErrWorkspace, err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(base, e.Name())
		if err := removeAll(path); err != nil {
			logger.Log.Warn("remove stale scratch failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
