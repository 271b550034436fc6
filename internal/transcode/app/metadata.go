package app

import (
	"context"
	"strings"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/database"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// MetadataService 重新套用 content type 與 cache control
type MetadataService struct {
	store database.ObjectStore
}

// NewMetadataService create MetadataService
func NewMetadataService(store database.ObjectStore) *MetadataService {
	return &MetadataService{store: store}
}

// Refresh 對 destination 底下每個物件做 self copy，回傳處理的數量
func (s *MetadataService) Refresh(ctx context.Context, destinationID string) (int, error) {
	destinationID = strings.TrimSpace(destinationID)
	if err := domain.ValidateDestinationID(destinationID); err != nil {
		return 0, errprocess.Setf(errprocess.ErrInvalidInput, "%v", err)
	}

	keys, err := s.store.List(ctx, domain.DestinationPrefix(destinationID))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, errprocess.Setf(errprocess.ErrNotFound, "destination[%s] has no objects", destinationID)
	}

	for i, key := range keys {
		if err := s.store.Copy(ctx, key, key, domain.ContentType(key)); err != nil {
			return i, err
		}
	}
	logger.Log.Info("metadata refreshed", zap.String("destination_id", destinationID), zap.Int("objects", len(keys)))
	return len(keys), nil
}
