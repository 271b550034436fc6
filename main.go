package main

import (
	"hls_transcode_service/internal/transcode/api/router"

	"github.com/gofiber/fiber/v2"
)

// swag init 的進入點，實際服務在 cmd/transcode_api
// swag init -g main.go -o ./cmd/transcode_api/docs
func main() {
	app := fiber.New()
	router.RegisterRoutes(app, nil)
}
