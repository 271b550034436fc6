package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "hls_transcode_service/cmd/transcode_api/docs" // 引入 Swagger 文件
	"hls_transcode_service/internal/transcode/api/handlers"
	"hls_transcode_service/internal/transcode/api/router"
	"hls_transcode_service/internal/transcode/app"
	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	"hls_transcode_service/pkg/config"
	"hls_transcode_service/pkg/database"
	"hls_transcode_service/pkg/logger"
	testtool "hls_transcode_service/pkg/test_tool"
	t_token "hls_transcode_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeAPI, config.EnvConfig.TranscodeAPILogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.TranscodeAPI](config.EnvConfig.TranscodeAPI, config.EnvConfig.TranscodeAPIYAMLPath)
	pipeline := cfg.Pipeline.WithDefaults()
	t_token.Configure(cfg.JWT)
	testtool.StartPprof()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. PostgreSQL (job table) + pgx pool (NOTIFY worker)
	dsn := database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	db, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries", zap.Error(err))
	}
	jobRepo := repository.NewJobRepo(db)
	if err := jobRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("資料表遷移失敗", zap.Error(err))
	}
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to create pgx pool", zap.Error(err))
	}
	defer pool.Close()

	// 2. Redis: status cache + completion pub/sub
	redisClient, err := database.NewRedisClient(redisConnection(cfg.Redis))
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	queue := app.NewJobQueue(
		jobRepo,
		repository.NewPGSignal(ctx, pool, false),
		pipeline.Policy(),
		app.WithStatusCache(database.NewRedisRepository[domain.JobStatus](redisClient), cfg.Redis.StatusTTL),
	)

	hub := app.NewStatusHub()
	if err := database.NewRedisPubSub(redisClient).Subscribe(ctx, completionChannel(cfg.Redis), hub.HandlePayload); err != nil {
		logger.Log.Warn("redis completion subscribe failed, websocket falls back to polling", zap.Error(err))
	}

	// 3. MongoDB attempt log
	mongoDB, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    database.MongoURI(cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port),
		RetryCount:    cfg.MongoDB.RetryCount,
		RetryInterval: time.Duration(cfg.MongoDB.RetryInterval),
	}, cfg.MongoDB.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB after retries", zap.Error(err))
	}
	defer mongoDB.Close(context.Background())
	if err := repository.EnsureAttemptIndexes(ctx, mongoDB.Database); err != nil {
		logger.Log.Warn("create attempt indexes failed", zap.Error(err))
	}

	// 4. MinIO (metadata refresh)
	minioClient, err := database.NewMinIOConnection(minioConnection(cfg.MinIO))
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries", zap.Error(err))
	}

	// 5. RabbitMQ enqueue consumer
	rabbitConn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    database.RabbitMQURL(cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port),
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}
	defer rabbitConn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(rabbitConn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer rabbitChannel.Close()

	consumer := app.NewEnqueueConsumer(database.NewRabbitRepository(rabbitChannel), queue, cfg.RabbitMQ.Queue, 0)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Log.Error("enqueue consumer stopped", zap.Error(err))
		}
	}()

	// 6. Fiber
	transcodeHandler := handlers.NewTranscodeHandler(
		queue,
		repository.NewAttemptLogRepo(mongoDB.Database),
		app.NewMetadataService(minioClient),
		hub,
		pipeline.PollInterval,
	)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.TranscodeAPILogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, transcodeHandler)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down transcode api")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Warn("fiber shutdown", zap.Error(err))
		}
	}()

	if err := r.Listen(cfg.IP + ":" + cfg.Port); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}

func redisConnection(c config.RedisConfig) database.RedisConnection {
	master, sentinels := config.GetRedisSetting()
	return database.RedisConnection{
		Addr:          c.Addr,
		Password:      c.Password,
		DB:            c.RedisDB,
		MasterName:    master,
		SentinelAddrs: sentinels,
	}
}

func completionChannel(c config.RedisConfig) string {
	if c.Channel == "" {
		return "transcode:completed"
	}
	return c.Channel
}

func minioConnection(c config.MinIOConfig) database.MinIOConnection {
	return database.MinIOConnection{
		Endpoint:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		User:         c.User,
		Password:     c.Password,
		BucketName:   c.BucketName,
		Region:       c.Region,
		UseSSL:       c.UseSSL,
		CDNBaseURL:   c.CDNBaseURL,
		CacheControl: c.CacheControl,

		RetryCount:    c.RetryCount,
		RetryInterval: time.Duration(c.RetryInterval),
	}
}
