package main

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ocr-gateway/config"
	"ocr-gateway/ingest"
	"ocr-gateway/middleware/ratelimit"
	"ocr-gateway/middleware/ratelimit/application"
	"ocr-gateway/middleware/ratelimit/infra"
	"ocr-gateway/ocr"
	"ocr-gateway/pipeline"
	"ocr-gateway/server"
)

// Exemplo: o gateway completo com um motor estático em processo, para rodar
// localmente sem libtesseract. O texto devolvido vem de EXAMPLE_TEXT.
func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(viper.New(), "")
	if err != nil {
		log.Fatal("config error", zap.Error(err))
	}
	if os.Getenv("LISTEN_ADDR") == "" {
		cfg.ListenAddr = ":8081"
	}

	text := os.Getenv("EXAMPLE_TEXT")
	if text == "" {
		text = "Visit https://example.com/docs?lang=go or http://example.org for details"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewStore(cfg.RateLimitRequests, cfg.RateLimitWindow)
	store.StartJanitor(ctx)
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))

	adapter := ocr.NewAdapter(staticEngine(text), nil, infra.NewChanPool(cfg.EngineConcurrency))
	orch, err := pipeline.New(pipeline.Options{
		Admitter:   application.Service{Store: store, Stats: stats, Logger: log.Named("ratelimit")},
		Ingester:   ingest.Gateway{MaxSize: cfg.MaxUploadSize, ChunkSize: cfg.UploadChunkSize},
		Recognizer: adapter,
		Uploads:    application.ConcurrencyService{Pool: infra.NewChanPool(50)},
		Window:     cfg.RateLimitWindow,
		MaxSize:    cfg.MaxUploadSize,
		Logger:     log,
	})
	if err != nil {
		log.Fatal("pipeline", zap.Error(err))
	}

	h := server.New(server.Options{
		Pipeline: orch,
		Engine:   adapter,
		Limits: server.Limits{
			MaxUploadSize:     cfg.MaxUploadSize,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
		},
		KeyFunc:             ratelimit.DefaultKeyFunc("X-Api-Key", true), // ou vazio para usar IP
		AddRateLimitHeaders: true,
		Stats:               &server.StatsSource{Memory: stats, Clients: store},
		Logger:              log,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

// staticEngine devolve sempre o mesmo texto, uma linha por frase, seguido das
// dimensões da imagem recebida.
func staticEngine(text string) ocr.Engine {
	return ocr.EngineFunc(func(_ context.Context, img image.Image) ([]ocr.Line, error) {
		var lines []ocr.Line
		for _, sentence := range strings.Split(text, ". ") {
			var line ocr.Line
			for _, word := range strings.Fields(sentence) {
				line = append(line, ocr.Fragment{Text: word, Confidence: 1})
			}
			lines = append(lines, line)
		}
		b := img.Bounds()
		lines = append(lines, ocr.Line{{Text: fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), Confidence: 1}})
		return lines, nil
	})
}
