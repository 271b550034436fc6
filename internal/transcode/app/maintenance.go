package app

import (
	"context"
	"time"

	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// Maintenance 定期回收卡住的 job 與殘留的暫存目錄
type Maintenance struct {
	queue         JobQueue
	scratchDir    string
	interval      time.Duration
	reclaimAfter  time.Duration
	scratchMaxAge time.Duration
	now           func() time.Time
}

// NewMaintenance reclaimAfter 應大於單次執行時限
func NewMaintenance(queue JobQueue, scratchDir string, interval, reclaimAfter, scratchMaxAge time.Duration) *Maintenance {
	return &Maintenance{
		queue:         queue,
		scratchDir:    scratchDir,
		interval:      interval,
		reclaimAfter:  reclaimAfter,
		scratchMaxAge: scratchMaxAge,
		now:           time.Now,
	}
}

// RunOnce 回收 stale job 後清理暫存目錄
func (m *Maintenance) RunOnce(ctx context.Context) {
	if n, err := m.queue.ReclaimStale(ctx, m.reclaimAfter); err != nil {
		logger.Log.Warn("reclaim stale jobs failed", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("reclaimed stale jobs", zap.Int("count", n))
	}

	if n, err := SweepScratch(m.scratchDir, m.scratchMaxAge, m.now()); err != nil {
		logger.Log.Warn("sweep scratch failed", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("swept scratch directories", zap.Int("count", n))
	}
}

// Start 阻塞直到 ctx 結束
func (m *Maintenance) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}
