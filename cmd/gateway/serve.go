package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ocr-gateway/config"
	"ocr-gateway/ingest"
	"ocr-gateway/middleware/ratelimit"
	"ocr-gateway/middleware/ratelimit/application"
	"ocr-gateway/middleware/ratelimit/domain"
	"ocr-gateway/middleware/ratelimit/infra"
	"ocr-gateway/ocr"
	"ocr-gateway/ocr/tesseract"
	"ocr-gateway/pipeline"
	"ocr-gateway/server"
)

func run(parent context.Context, cfg config.Config) error {
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// falha aqui não derruba o processo: o /health passa a responder 500
	var engine ocr.Engine
	if eng, err := tesseract.New(cfg.OCRLanguages...); err != nil {
		log.Error("recognition engine init failed", zap.Strings("languages", cfg.OCRLanguages), zap.Error(err))
	} else {
		engine = eng
		log.Info("recognition engine initialized", zap.String("engine", eng.Name()), zap.Strings("languages", eng.Languages()))
	}

	store := infra.NewStore(cfg.RateLimitRequests, cfg.RateLimitWindow,
		infra.WithShards(cfg.RateShards),
		infra.WithIdleTTL(cfg.RateIdleTTL),
		infra.WithCleanupEvery(cfg.RateCleanupEvery),
	)
	store.StartJanitor(ctx)

	memStats := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
	statsSrc := &server.StatsSource{Memory: memStats, Clients: store}
	var stats domain.StatsStore = memStats
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
			// estatística não pode segurar a decisão de admissão
			DialTimeout:  cfg.Stats.Timeout,
			ReadTimeout:  cfg.Stats.Timeout,
			WriteTimeout: cfg.Stats.Timeout,
			MaxRetries:   -1,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return errors.Join(errors.New("redis stats ping error"), err)
		}

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		stats = infra.MultiStats{memStats, redisStats}
		statsSrc.Redis = redisStats
	}

	enginePool := infra.NewChanPool(cfg.EngineConcurrency)
	statsSrc.Slots = map[string]domain.SlotUsage{"engine": enginePool}
	var uploadPool domain.SlotPool
	if cfg.ConcurrencyMax > 0 {
		p := infra.NewChanPool(cfg.ConcurrencyMax)
		statsSrc.Slots["uploads"] = p
		uploadPool = p
	}

	adapter := ocr.NewAdapter(engine, ocr.StdDecoder, enginePool)
	orch, err := pipeline.New(pipeline.Options{
		Admitter: application.Service{
			Store:        store,
			Stats:        stats,
			StatsTimeout: cfg.Stats.Timeout,
			Logger:       log.Named("ratelimit"),
		},
		Ingester:   ingest.Gateway{MaxSize: cfg.MaxUploadSize, ChunkSize: cfg.UploadChunkSize},
		Recognizer: adapter,
		Uploads:    application.ConcurrencyService{Pool: uploadPool, AcquireTimeout: cfg.ConcurrencyTimeout},
		Window:     cfg.RateLimitWindow,
		MaxSize:    cfg.MaxUploadSize,
		Logger:     log.Named("pipeline"),
	})
	if err != nil {
		return err
	}

	h := server.New(server.Options{
		Pipeline: orch,
		Engine:   adapter,
		Limits: server.Limits{
			MaxUploadSize:     cfg.MaxUploadSize,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
		},
		KeyFunc:             ratelimit.DefaultKeyFunc(cfg.RateKeyHeader, cfg.TrustXFF),
		AddRateLimitHeaders: cfg.AddHeaders,
		Stats:               statsSrc,
		Logger:              log.Named("http"),
		Version:             version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// sem timeout na chamada ao motor; o limite fica no servidor
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	log.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", version),
		zap.Bool("engine_ready", adapter.Ready()))
	log.Info("rate limit",
		zap.Int("requests", cfg.RateLimitRequests),
		zap.Duration("window", cfg.RateLimitWindow),
		zap.String("key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF),
		zap.Int("shards", cfg.RateShards),
		zap.Duration("idle_ttl", max(cfg.RateIdleTTL, cfg.RateLimitWindow)))
	log.Info("upload",
		zap.Int64("max_size", cfg.MaxUploadSize),
		zap.Int("chunk_size", cfg.UploadChunkSize),
		zap.Int("concurrency_max", cfg.ConcurrencyMax),
		zap.Duration("concurrency_timeout", cfg.ConcurrencyTimeout),
		zap.Int("engine_concurrency", cfg.EngineConcurrency))
	log.Info("rate stats",
		zap.Bool("redis", cfg.Stats.Enabled),
		zap.String("redis_addr", cfg.Stats.RedisAddr),
		zap.String("bucket", cfg.Stats.Bucket),
		zap.Bool("track_keys", cfg.Stats.TrackKeys))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
