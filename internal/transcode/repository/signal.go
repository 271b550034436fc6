package repository

import (
	"context"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// JobSignal 新 job 進來時喚醒等待中的 worker，遺失通知時 worker 仍會定期輪詢
type JobSignal interface {
	Notify(ctx context.Context) error
	Wait(ctx context.Context) error
}

type chanSignal struct {
	ch chan struct{}
}

// NewChanSignal in-memory signal
func NewChanSignal() JobSignal {
	return &chanSignal{ch: make(chan struct{}, 1)}
}

func (s *chanSignal) Notify(_ context.Context) error {
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return nil
}

func (s *chanSignal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pgSignal 透過 postgres LISTEN/NOTIFY 跨 process 喚醒 worker
type pgSignal struct {
	pool    *pgxpool.Pool
	channel string
	local   *chanSignal
}

// NewPGSignal 建立 signal，listen 為 true 時會啟動 LISTEN goroutine (worker 端)
func NewPGSignal(ctx context.Context, pool *pgxpool.Pool, listen bool) JobSignal {
	s := &pgSignal{
		pool:    pool,
		channel: domain.SignalChannel,
		local:   &chanSignal{ch: make(chan struct{}, 1)},
	}
	if listen {
		go s.listen(ctx)
	}
	return s
}

func (s *pgSignal) Notify(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", s.channel, "enqueued")
	return err
}

func (s *pgSignal) Wait(ctx context.Context) error {
	return s.local.Wait(ctx)
}

// listen 斷線後等待重連，直到 ctx 結束
func (s *pgSignal) listen(ctx context.Context) {
	for {
		if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Warn("postgres LISTEN interrupted, retrying", zap.String("channel", s.channel), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *pgSignal) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+s.channel); err != nil {
		return err
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		_ = s.local.Notify(ctx)
	}
}
