// Package server expõe o pipeline de OCR via HTTP.
//
// Rotas:
//
//	GET  /        informações do serviço
//	GET  /health  estado do motor e limites configurados (sem rate limit)
//	GET  /stats   contadores de admissão (quando habilitado)
//	POST /upload/ multipart com o campo "file"
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ocr-gateway/middleware/ratelimit"
	"ocr-gateway/middleware/ratelimit/domain"
	"ocr-gateway/middleware/ratelimit/infra"
	"ocr-gateway/pipeline"
)

const (
	ServiceName    = "OCR Gateway"
	ServiceVersion = "1.0.0"
)

// Processor é o que o handler de upload precisa do pipeline.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// EngineStatus é consultado pelo /health.
type EngineStatus interface {
	Ready() bool
	EngineName() string
}

type Limits struct {
	MaxUploadSize     int64
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// StatsSource agrega o que o /stats consegue mostrar. Todos os campos são
// opcionais.
type StatsSource struct {
	Memory *infra.MemoryStatsStore
	Redis  interface {
		Total(ctx context.Context) (infra.Counters, error)
		ByRoute(ctx context.Context) (map[string]infra.Counters, error)
	}
	Clients interface{ Len() int }
	// Slots é indexado pelo nome do pool ("uploads", "engine").
	Slots map[string]domain.SlotUsage
}

type Options struct {
	Pipeline Processor
	Engine   EngineStatus
	Limits   Limits

	KeyFunc             ratelimit.KeyFunc
	AddRateLimitHeaders bool

	Stats *StatsSource

	Logger  *zap.Logger
	Now     func() time.Time
	Version string
}

type Server struct {
	router     *chi.Mux
	pipeline   Processor
	engine     EngineStatus
	limits     Limits
	keyFunc    ratelimit.KeyFunc
	addHeaders bool
	stats      *StatsSource
	log        *zap.Logger
	now        func() time.Time
	version    string
}

func New(opts Options) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		pipeline:   opts.Pipeline,
		engine:     opts.Engine,
		limits:     opts.Limits,
		keyFunc:    opts.KeyFunc,
		addHeaders: opts.AddRateLimitHeaders,
		stats:      opts.Stats,
		log:        opts.Logger,
		now:        opts.Now,
		version:    opts.Version,
	}
	if s.keyFunc == nil {
		s.keyFunc = ratelimit.DefaultKeyFunc("", false)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.version == "" {
		s.version = ServiceVersion
	}

	s.router.Use(RequestID)
	s.router.Use(AccessLog(s.log))
	s.router.Use(middleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	if s.stats != nil {
		s.router.Get("/stats", s.handleStats)
	}
	// limite de uploads simultâneos fica no pipeline, depois do rate limit
	s.router.Post("/upload/", s.handleUpload)
	s.router.Post("/upload", s.handleUpload)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
