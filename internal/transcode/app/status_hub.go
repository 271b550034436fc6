package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// StatusHub 把完成事件轉給正在等待該 job 的訂閱者
type StatusHub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.CompletionEvent]struct{}
}

// NewStatusHub create StatusHub
func NewStatusHub() *StatusHub {
	return &StatusHub{subs: map[string]map[chan domain.CompletionEvent]struct{}{}}
}

// Subscribe 回傳的 cancel 必須呼叫
func (h *StatusHub) Subscribe(jobID string) (<-chan domain.CompletionEvent, func()) {
	ch := make(chan domain.CompletionEvent, 1)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = map[chan domain.CompletionEvent]struct{}{}
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[jobID], ch)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
	}
}

// Publish 訂閱者來不及收時丟棄，websocket 端仍會輪詢
func (h *StatusHub) Publish(event domain.CompletionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.JobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// HandlePayload redis 訊息 handler
func (h *StatusHub) HandlePayload(payload []byte) {
	var event domain.CompletionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Log.Warn("invalid completion event", zap.Error(err))
		return
	}
	h.Publish(event)
}

// WatchStatus 狀態或 attempts 改變時呼叫 send，job 結束後回傳
func WatchStatus(
	ctx context.Context,
	queue JobQueue,
	hub *StatusHub,
	jobID string,
	interval time.Duration,
	send func(domain.JobStatus) error,
) error {
	var events <-chan domain.CompletionEvent
	if hub != nil {
		ch, cancel := hub.Subscribe(jobID)
		defer cancel()
		events = ch
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *domain.JobStatus
	for {
		st, err := queue.GetStatus(ctx, jobID)
		if err != nil {
			return err
		}
		if last == nil || last.State != st.State || last.Attempts != st.Attempts {
			if err := send(st); err != nil {
				return err
			}
			last = &st
		}
		if st.State.IsTerminal() {
			return nil
		}

		select {
		case <-ticker.C:
		case <-events:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
