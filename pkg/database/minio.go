package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectStore 物件儲存操作，錯誤會包成 ErrStorageUnavailable 或 ErrAccessDenied
type ObjectStore interface {
	// Put 上傳本地檔案，同 key 直接覆蓋
	Put(ctx context.Context, key, localPath, contentType string) (string, error)
	PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete 不存在的 key 不算錯誤
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// Copy server side copy，並以新的 content type / cache control 取代 metadata
	Copy(ctx context.Context, srcKey, dstKey, contentType string) error
	Download(ctx context.Context, key, destPath string) error
	URL(key string) string
}

// MinIOClient definition minio client
type MinIOClient struct {
	Client       *minio.Client
	BucketName   string
	cdnBaseURL   string
	cacheControl string
}

// NewMinIOConnection create a new minio connection have retry
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var mc *MinIOClient
	var err error

	for i := 1; i <= max(d.RetryCount, 1); i++ {
		mc, err = NewMinioClient(d)
		if err == nil {
			logger.Log.Info("minIO connected", zap.String("endpoint", d.Endpoint), zap.Int("attempt", i))
			return mc, nil
		}

		logger.Log.Warn("minIO connect failed, retrying...",
			zap.String("endpoint", d.Endpoint),
			zap.Int("attempt", i),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, err
}

// NewMinioClient create a new minio client and ensure bucket
func NewMinioClient(d MinIOConnection) (*MinIOClient, error) {
	mc, err := newMinIOClient(d)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := mc.Client.BucketExists(ctx, d.BucketName)
	if err != nil {
		return nil, fmt.Errorf("檢查 bucket [%s] 失敗: %w", d.BucketName, err)
	}

	if !exists {
		if err = mc.Client.MakeBucket(ctx, d.BucketName, minio.MakeBucketOptions{Region: d.Region}); err != nil {
			return nil, fmt.Errorf("建立 bucket [%s] 失敗: %w", d.BucketName, err)
		}
		logger.Log.Info("bucket created", zap.String("bucket", d.BucketName))
	}

	return mc, nil
}

// newMinIOClient 只建立 client 不連線
func newMinIOClient(d MinIOConnection) (*MinIOClient, error) {
	client, err := minio.New(d.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(d.User, d.Password, ""),
		Secure: d.UseSSL,
		Region: d.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 失敗: %w", err)
	}

	return &MinIOClient{
		Client:       client,
		BucketName:   d.BucketName,
		cdnBaseURL:   strings.TrimRight(d.CDNBaseURL, "/"),
		cacheControl: d.CacheControl,
	}, nil
}

// Put minio upload file func
func (m *MinIOClient) Put(ctx context.Context, key, localPath, contentType string) (string, error) {
	_, err := m.Client.FPutObject(ctx, m.BucketName, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: m.cacheControl,
	})
	if err != nil {
		return "", classifyStorageError("put", key, err)
	}
	return m.URL(key), nil
}

// PutBytes minio upload bytes func
func (m *MinIOClient) PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := m.Client.PutObject(ctx, m.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: m.cacheControl,
	})
	if err != nil {
		return "", classifyStorageError("put", key, err)
	}
	return m.URL(key), nil
}

// Delete minio remove object
func (m *MinIOClient) Delete(ctx context.Context, key string) error {
	err := m.Client.RemoveObject(ctx, m.BucketName, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return classifyStorageError("delete", key, err)
	}
	return nil
}

// List 列出 prefix 底下所有 key
func (m *MinIOClient) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	for obj := range m.Client.ListObjects(ctx, m.BucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classifyStorageError("list", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Copy server side copy with REPLACE metadata
func (m *MinIOClient) Copy(ctx context.Context, srcKey, dstKey, contentType string) error {
	meta := map[string]string{"Content-Type": contentType}
	if m.cacheControl != "" {
		meta["Cache-Control"] = m.cacheControl
	}

	_, err := m.Client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          m.BucketName,
			Object:          dstKey,
			ReplaceMetadata: true,
			UserMetadata:    meta,
		},
		minio.CopySrcOptions{
			Bucket: m.BucketName,
			Object: srcKey,
		},
	)
	if err != nil {
		return classifyStorageError("copy", srcKey, err)
	}
	return nil
}

// Download minio download file func
func (m *MinIOClient) Download(ctx context.Context, key, destPath string) error {
	if err := m.Client.FGetObject(ctx, m.BucketName, key, destPath, minio.GetObjectOptions{}); err != nil {
		return classifyStorageError("download", key, err)
	}
	return nil
}

// URL 有設定 CDN 時改寫成 CDN 網址
func (m *MinIOClient) URL(key string) string {
	if m.cdnBaseURL != "" {
		return m.cdnBaseURL + "/" + key
	}
	endpoint := m.Client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", endpoint.Scheme, endpoint.Host, m.BucketName, key)
}

var accessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AllAccessDisabled":     true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
}

// classifyStorageError 權限錯誤不重試，其餘視為暫時性錯誤
func classifyStorageError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errprocess.ErrAccessDenied) || errors.Is(err, errprocess.ErrStorageUnavailable) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	if accessDeniedCodes[resp.Code] || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s[%s]: %v", errprocess.ErrAccessDenied, op, key, err)
	}
	return fmt.Errorf("%w: %s[%s]: %v", errprocess.ErrStorageUnavailable, op, key, err)
}
