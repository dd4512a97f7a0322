package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/config"
	"github.com/influencerlab/api/internal/generation"
	"github.com/influencerlab/api/internal/handler"
	"github.com/influencerlab/api/internal/logging"
	"github.com/influencerlab/api/internal/middleware"
	"github.com/influencerlab/api/internal/model"
	"github.com/influencerlab/api/internal/server"
	"github.com/influencerlab/api/internal/service"
	ws "github.com/influencerlab/api/internal/websocket"
	"github.com/influencerlab/api/internal/worker"
	"github.com/influencerlab/api/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Server.LogLevel, cfg.Server.Env)
	if err := cfg.Validate(); err != nil {
		// Generations fail with CONFIGURATION_ERROR until this is fixed.
		log.Warn().Err(err).Msg("configuration incomplete")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// Compute backend and optional R2 mirror
	compute := client.NewComputeClient(&cfg.Compute, log)

	var store client.ObjectStore
	r2Ready := false
	if client.R2Configured(&cfg.R2) {
		r2Client, err := client.NewR2Client(ctx, &cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("R2 client not initialized")
		} else {
			store = r2Client
			r2Ready = true
		}
	} else {
		log.Info().Msg("R2 storage not configured, videos are kept on local disk only")
	}

	if err := os.MkdirAll(cfg.Storage.OutputDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", cfg.Storage.OutputDir).Msg("cannot create output directory")
	}

	orchestrator := generation.NewOrchestrator(cfg, compute, store, log)

	// Services and handlers
	jobStore := service.NewRedisJobStore(redisClient, service.DefaultJobTTL)
	generationService := service.NewGenerationService(jobStore, asynqClient)

	validate := validator.New()
	app := server.New(server.Deps{
		Generate: handler.NewGenerateHandler(generationService, validate, workflow.DefaultPersonas()),
		Health: handler.NewHealthHandler(compute, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, r2Ready),
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
		Hub:         hub,
		Limits: server.Limits{
			ImagePerHour: cfg.RateLimit.ImagePerHour,
			VideoPerHour: cfg.RateLimit.VideoPerHour,
		},
		StaticPrefix:    cfg.Storage.PublicPrefix,
		StaticDir:       cfg.Storage.OutputDir,
		AccessLogFormat: accessLogFormat(cfg.Server.LogLevel),
	})

	// Start Asynq worker server
	srv := newWorkerServer(cfg, redisOpt, log)
	genWorker := worker.NewGenerationWorker(orchestrator, generationService, hub, log)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, genWorker.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Error().Err(err).Msg("asynq worker error")
		}
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		srv.Shutdown()
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("compute", cfg.Compute.BaseURL).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, log zerolog.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			service.QueueFor(model.MediaKindImage): cfg.Worker.ImageWeight,
			service.QueueFor(model.MediaKindVideo): cfg.Worker.VideoWeight,
		},
		Logger:   logging.NewAsynqLogger(log),
		LogLevel: logging.AsynqLevel(cfg.Server.LogLevel),
	})
}

func accessLogFormat(level string) string {
	if strings.EqualFold(level, "debug") {
		return "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	return "[${time}] ${status} - ${latency} ${method} ${path}\n"
}
