package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls_transcode_service/internal/transcode/app"
	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/internal/transcode/repository"
	"hls_transcode_service/pkg/config"
	"hls_transcode_service/pkg/database"
	"hls_transcode_service/pkg/logger"
	testtool "hls_transcode_service/pkg/test_tool"

	"go.uber.org/zap"
)

const healthService = "transcode.worker"

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.TranscodeWorker](config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerYAMLPath)
	pipeline := cfg.Pipeline.WithDefaults()
	maintenance := cfg.Maintenance.WithDefaults()
	testtool.StartPprof()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// gRPC health 先啟動，依賴準備好之前回報 NOT_SERVING
	health := database.NewHealthServer(healthService)
	go func() {
		if err := health.Serve(cfg.IP + ":" + cfg.HealthPort); err != nil {
			logger.Log.Error("health server stopped", zap.Error(err))
		}
	}()
	defer health.Stop()

	// 1. ffmpeg
	encoder := app.NewFFmpegEncoder(pipeline.FFmpegPath, pipeline.MaxParallelEncodes)
	probeCtx, cancelProbe := context.WithTimeout(ctx, 10*time.Second)
	err := encoder.Probe(probeCtx)
	cancelProbe()
	if err != nil {
		logger.Log.Fatal("ffmpeg probe failed", zap.Error(err))
	}

	// 2. PostgreSQL job table + LISTEN
	pgConn := database.Connection{
		ConnectStr:    database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database),
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

	// 3. Redis status cache + completion channel
	master, sentinels := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(database.RedisConnection{
		Addr:          cfg.Redis.Addr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.RedisDB,
		MasterName:    master,
		SentinelAddrs: sentinels,
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	queue := app.NewJobQueue(
		jobRepo,
		repository.NewPGSignal(ctx, pool, true),
		pipeline.Policy(),
		app.WithStatusCache(database.NewRedisRepository[domain.JobStatus](redisClient), cfg.Redis.StatusTTL),
	)

	// 4. MongoDB attempt log
	mongoDB, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    database.MongoURI(cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port),
		RetryCount:    cfg.MongoDB.RetryCount,
		RetryInterval: time.Duration(cfg.MongoDB.RetryInterval),
	}, cfg.MongoDB.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB after retries", zap.Error(err))
	}
	defer mongoDB.Close(context.Background())

	// 5. MinIO
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:     fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:         cfg.MinIO.User,
		Password:     cfg.MinIO.Password,
		BucketName:   cfg.MinIO.BucketName,
		Region:       cfg.MinIO.Region,
		UseSSL:       cfg.MinIO.UseSSL,
		CDNBaseURL:   cfg.MinIO.CDNBaseURL,
		CacheControl: cfg.MinIO.CacheControl,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries", zap.Error(err))
	}

	// 6. 完成通知: kafka + redis，kafka 連不上時只用 redis
	notifiers := app.MultiNotifier{app.LogNotifier{}}
	channel := cfg.Redis.Channel
	if channel == "" {
		channel = "transcode:completed"
	}
	notifiers = append(notifiers, app.NewRedisNotifier(database.NewRedisPubSub(redisClient), channel))
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Brokers[0] != "" {
		kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Warn("Kafka Writer 建立失敗, completion events only go to redis", zap.Error(err))
		} else {
			defer kafkaWriter.Close()
			notifiers = append(notifiers, app.NewKafkaNotifier(kafkaWriter))
		}
	}

	// 7. Orchestrator + worker pool + maintenance
	orchestrator := app.NewOrchestrator(
		queue,
		minioClient,
		encoder,
		app.NewSourceStager(minioClient, &http.Client{Timeout: pipeline.AttemptTimeout}),
		notifiers,
		repository.NewAttemptLogRepo(mongoDB.Database),
		app.OrchestratorConfig{
			Renditions:           pipeline.RenditionSet(),
			ScratchDir:           pipeline.ScratchDir,
			AttemptTimeout:       pipeline.AttemptTimeout,
			RenditionParallelism: pipeline.RenditionParallelism,
		},
	)

	workers := app.NewWorkerPool(queue, orchestrator, pipeline.Workers, pipeline.PollInterval)
	workers.Start(ctx)

	reaper := app.NewMaintenance(
		queue,
		pipeline.ScratchDir,
		maintenance.Interval,
		pipeline.AttemptTimeout+maintenance.ReclaimGrace,
		maintenance.ScratchMaxAge,
	)
	go reaper.Start(ctx)

	health.SetServing(healthService, true)
	logger.Log.Info("transcode worker started",
		zap.Int("workers", pipeline.Workers),
		zap.Int("max_parallel_encodes", pipeline.MaxParallelEncodes),
		zap.Int("renditions", len(pipeline.RenditionSet())),
	)

	<-ctx.Done()
	health.SetServing(healthService, false)
	logger.Log.Info("shutting down transcode worker, waiting for running attempts")
	workers.Stop()
}
