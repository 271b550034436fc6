package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hls_transcode_service/pkg/database"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// SourceStager 把來源影片準備到本地，回傳可以交給 encoder 的路徑
type SourceStager interface {
	Stage(ctx context.Context, sourceURL string, ws *Workspace) (string, error)
}

type sourceStager struct {
	store  database.ObjectStore
	client *http.Client
}

// NewSourceStager http(s) 直接下載，s3:// minio:// 或 key 從物件儲存下載，file:// 或絕對路徑直接使用
func NewSourceStager(store database.ObjectStore, client *http.Client) SourceStager {
	if client == nil {
		client = http.DefaultClient
	}
	return &sourceStager{store: store, client: client}
}

func (s *sourceStager) Stage(ctx context.Context, sourceURL string, ws *Workspace) (string, error) {
	if filepath.IsAbs(sourceURL) {
		return stageLocal(sourceURL)
	}

	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", errprocess.Wrap(errprocess.ErrInvalidInput, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return s.download(ctx, u, ws)
	case "file":
		return stageLocal(u.Path)
	case "s3", "minio":
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			return "", errprocess.Setf(errprocess.ErrInvalidInput, "source[%s] has no object key", sourceURL)
		}
		return s.fetchObject(ctx, key, ws)
	case "":
		return s.fetchObject(ctx, strings.TrimPrefix(sourceURL, "/"), ws)
	default:
		return "", errprocess.Setf(errprocess.ErrInvalidInput, "source scheme[%s] not supported", u.Scheme)
	}
}

func stageLocal(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%w: stat source %s: %v", errprocess.ErrWorkspace, p, err)
	}
	if info.IsDir() {
		return "", errprocess.Setf(errprocess.ErrInvalidInput, "source[%s] is a directory", p)
	}
	return p, nil
}

func (s *sourceStager) fetchObject(ctx context.Context, key string, ws *Workspace) (string, error) {
	if s.store == nil {
		return "", errprocess.Setf(errprocess.ErrStorageUnavailable, "object store not configured for key[%s]", key)
	}
	dest := ws.SourcePath(path.Ext(key))
	if err := s.store.Download(ctx, key, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *sourceStager) download(ctx context.Context, u *url.URL, ws *Workspace) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errprocess.Wrap(errprocess.ErrInvalidInput, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", contextError(ctx, "source download")
		}
		return "", fmt.Errorf("%w: download %s: %v", errprocess.ErrStorageUnavailable, u.Redacted(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: download %s: status %d", errprocess.ErrAccessDenied, u.Redacted(), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: download %s: status %d", errprocess.ErrStorageUnavailable, u.Redacted(), resp.StatusCode)
	}

	dest := ws.SourcePath(path.Ext(u.Path))
	f, err := os.Create(dest)
	if err != nil {
		return "", errprocess.Wrap(errprocess.ErrWorkspace, err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", contextError(ctx, "source download")
		}
		return "", fmt.Errorf("%w: read %s: %v", errprocess.ErrStorageUnavailable, u.Redacted(), err)
	}

	logger.Log.Debug("source downloaded", zap.String("url", u.Redacted()), zap.Int64("bytes", n))
	return dest, nil
}
