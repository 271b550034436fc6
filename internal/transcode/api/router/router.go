package router

import (
	"hls_transcode_service/internal/transcode/api/handlers"
	"hls_transcode_service/pkg/middlewares"
	t_token "hls_transcode_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 transcode api 路由
// @title HLS Transcode Service API
// @version 1.0
// @description Enqueue transcode jobs and follow their status
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(app *fiber.App, transcodeHandler *handlers.TranscodeHandler) {
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", middlewares.JWTMiddleware(), middlewares.RequireRole(t_token.RoleAdmin), handlers.DebugLogFlag)

	transcodeRoutes := app.Group("/transcode", middlewares.JWTMiddleware())
	transcodeRoutes.Post("/", transcodeHandler.Enqueue)
	transcodeRoutes.Post("/metadata/:destinationId", transcodeHandler.RefreshMetadata)
	transcodeRoutes.Get("/:jobId", transcodeHandler.GetStatus)
	transcodeRoutes.Get("/:jobId/attempts", transcodeHandler.ListAttempts)

	wsRoutes := app.Group("/ws", middlewares.JWTMiddleware(), handlers.UpgradeCheck)
	wsRoutes.Get("/transcode/:jobId", websocket.New(transcodeHandler.WatchJob))
}
