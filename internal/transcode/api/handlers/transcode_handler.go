package handlers

import (
	"context"
	"time"

	"hls_transcode_service/internal/transcode/app"
	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// TranscodeHandler transcode http / websocket handler
type TranscodeHandler struct {
	queue        app.JobQueue
	attempts     repository.AttemptLogRepo
	metadata     *app.MetadataService
	hub          *app.StatusHub
	pollInterval time.Duration
}

// NewTranscodeHandler create TranscodeHandler，hub 可為 nil (只靠輪詢)
func NewTranscodeHandler(
	queue app.JobQueue,
	attempts repository.AttemptLogRepo,
	metadata *app.MetadataService,
	hub *app.StatusHub,
	pollInterval time.Duration,
) *TranscodeHandler {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &TranscodeHandler{
		queue:        queue,
		attempts:     attempts,
		metadata:     metadata,
		hub:          hub,
		pollInterval: pollInterval,
	}
}

// EnqueueReq enqueue request body
type EnqueueReq struct {
	SourceURL     string `json:"sourceUrl"`
	DestinationID string `json:"destinationId"`
	MaxAttempts   int    `json:"maxAttempts,omitempty"`
}

// EnqueueRes enqueue response
type EnqueueRes struct {
	JobID string `json:"jobId"`
}

// MetadataRes metadata refresh response
type MetadataRes struct {
	DestinationID string `json:"destinationId"`
	Objects       int    `json:"objects"`
}

// Enqueue godoc
// @Summary Enqueue a transcode job
// @Description Creates a queued job that converts sourceUrl into an HLS rendition ladder under destinationId
// @Tags Transcode
// @Accept json
// @Produce json
// @Param request body EnqueueReq true "Transcode request"
// @Security BearerAuth
// @Success 202 {object} EnqueueRes
// @Failure 400 {object} ErrorRes
// @Failure 500 {object} ErrorRes
// @Router /transcode [post]
func (h *TranscodeHandler) Enqueue(c *fiber.Ctx) error {
	var req EnqueueReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	jobID, err := h.queue.Enqueue(c.UserContext(), domain.EnqueueRequest{
		SourceURL:     req.SourceURL,
		DestinationID: req.DestinationID,
		Options:       domain.EnqueueOptions{MaxAttempts: req.MaxAttempts},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(EnqueueRes{JobID: jobID})
}

// GetStatus godoc
// @Summary Get transcode job status
// @Tags Transcode
// @Produce json
// @Param jobId path string true "Job ID"
// @Security BearerAuth
// @Success 200 {object} domain.JobStatus
// @Failure 404 {object} ErrorRes
// @Router /transcode/{jobId} [get]
func (h *TranscodeHandler) GetStatus(c *fiber.Ctx) error {
	st, err := h.queue.GetStatus(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}

// ListAttempts godoc
// @Summary List attempts of a job
// @Description Per-attempt stage, outcome and error, oldest first
// @Tags Transcode
// @Produce json
// @Param jobId path string true "Job ID"
// @Security BearerAuth
// @Success 200 {array} domain.AttemptRecord
// @Failure 404 {object} ErrorRes
// @Router /transcode/{jobId}/attempts [get]
func (h *TranscodeHandler) ListAttempts(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if _, err := h.queue.GetStatus(c.UserContext(), jobID); err != nil {
		return respondError(c, err)
	}

	records, err := h.attempts.ListByJob(c.UserContext(), jobID)
	if err != nil {
		return respondError(c, err)
	}
	if records == nil {
		records = []domain.AttemptRecord{}
	}
	return c.JSON(records)
}

// RefreshMetadata godoc
// @Summary Re-apply content type and cache control
// @Description Copies every object under videos/{destinationId}/ onto itself with the derived content type
// @Tags Transcode
// @Produce json
// @Param destinationId path string true "Destination ID"
// @Security BearerAuth
// @Success 200 {object} MetadataRes
// @Failure 400 {object} ErrorRes
// @Failure 404 {object} ErrorRes
// @Router /transcode/metadata/{destinationId} [post]
func (h *TranscodeHandler) RefreshMetadata(c *fiber.Ctx) error {
	dest := c.Params("destinationId")
	n, err := h.metadata.Refresh(c.UserContext(), dest)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(MetadataRes{DestinationID: dest, Objects: n})
}

// UpgradeCheck 只允許 websocket upgrade
func UpgradeCheck(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WatchJob websocket /ws/transcode/:jobId，job 結束後關閉
func (h *TranscodeHandler) WatchJob(conn *websocket.Conn) {
	jobID := conn.Params("jobId")
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.Close()
	}()

	// client 關閉或斷線時停止推送
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err := app.WatchStatus(ctx, h.queue, h.hub, jobID, h.pollInterval, func(st domain.JobStatus) error {
		return conn.WriteJSON(st)
	})
	if err != nil && ctx.Err() == nil {
		logger.Log.Warn("watch job failed", zap.String("job_id", jobID), zap.Error(err))
		_ = conn.WriteJSON(fiber.Map{"error": errprocess.Truncate(err.Error(), 256)})
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second),
	)
}
