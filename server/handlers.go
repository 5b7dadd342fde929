package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ocr-gateway/ingest"
	"ocr-gateway/middleware/ratelimit"
	"ocr-gateway/middleware/ratelimit/infra"
	"ocr-gateway/pipeline"
)

const uploadRoute = "/upload/"

type endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

type rootResponse struct {
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	Endpoints []endpoint `json:"endpoints"`
}

type healthResponse struct {
	Status                 string  `json:"status"`
	Timestamp              string  `json:"timestamp"`
	MaxFileSizeMB          float64 `json:"max_file_size_mb"`
	RateLimitRequests      int     `json:"rate_limit_requests"`
	RateLimitWindowSeconds int64   `json:"rate_limit_window_seconds"`
	EngineReady            bool    `json:"engine_ready"`
	Engine                 string  `json:"engine,omitempty"`
}

type statsResponse struct {
	Total          infra.Counters            `json:"total"`
	ByRoute        map[string]infra.Counters `json:"by_route"`
	ByKey          map[string]infra.Counters `json:"by_key,omitempty"`
	TrackedClients *int                      `json:"tracked_clients,omitempty"`
	Redis          *infra.Counters           `json:"redis,omitempty"`
	RedisByRoute   map[string]infra.Counters `json:"redis_by_route,omitempty"`
	RedisError     string                    `json:"redis_error,omitempty"`
	Slots          map[string]slotUsage      `json:"slots,omitempty"`
}

type slotUsage struct {
	InUse    int `json:"in_use"`
	Capacity int `json:"capacity"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	eps := []endpoint{
		{Path: "/", Method: http.MethodGet, Description: "API information"},
		{Path: "/health", Method: http.MethodGet, Description: "Health check endpoint"},
		{Path: uploadRoute, Method: http.MethodPost, Description: "Upload and process image"},
	}
	if s.stats != nil {
		eps = append(eps, endpoint{Path: "/stats", Method: http.MethodGet, Description: "Rate limit statistics"})
	}
	writeJSON(w, http.StatusOK, rootResponse{Name: ServiceName, Version: s.version, Endpoints: eps})
}

// handleHealth só lê configuração e o estado do motor; não passa pelo rate limit.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil || !s.engine.Ready() {
		writeDetail(w, http.StatusInternalServerError, "Recognition engine not initialized properly")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:                 "healthy",
		Timestamp:              s.now().Format(time.RFC3339Nano),
		MaxFileSizeMB:          float64(s.limits.MaxUploadSize) / (1024 * 1024),
		RateLimitRequests:      s.limits.RateLimitRequests,
		RateLimitWindowSeconds: int64(s.limits.RateLimitWindow / time.Second),
		EngineReady:            true,
		Engine:                 s.engine.EngineName(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	if m := s.stats.Memory; m != nil {
		resp.Total = m.Total()
		resp.ByRoute = m.ByRoute()
		resp.ByKey = m.ByKey()
	}
	if c := s.stats.Clients; c != nil {
		n := c.Len()
		resp.TrackedClients = &n
	}
	if rs := s.stats.Redis; rs != nil {
		total, err := rs.Total(r.Context())
		if err == nil {
			resp.Redis = &total
			resp.RedisByRoute, err = rs.ByRoute(r.Context())
		}
		if err != nil {
			s.log.Warn("redis stats unavailable", zap.Error(err))
			resp.RedisError = err.Error()
		}
	}
	if len(s.stats.Slots) > 0 {
		resp.Slots = make(map[string]slotUsage, len(s.stats.Slots))
		for name, u := range s.stats.Slots {
			if u != nil {
				resp.Slots[name] = slotUsage{InUse: u.InUse(), Capacity: u.Capacity()}
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeDetail(w, http.StatusInternalServerError, "Upload pipeline not configured")
		return
	}
	resp, err := s.pipeline.Process(r.Context(), pipeline.Request{
		ClientID:  s.keyFunc(r),
		RequestID: GetRequestID(r.Context()),
		Route:     uploadRoute,
		Open:      ingest.MultipartFile(r, ingest.FileField),
	})
	if s.addHeaders || !resp.Decision.Allowed {
		ratelimit.WriteHeaders(w, resp.Decision, s.addHeaders)
	}
	if err != nil {
		var pe *pipeline.Error
		if !errors.As(err, &pe) {
			writeDetail(w, http.StatusInternalServerError, "Error processing image: "+err.Error())
			return
		}
		if pe.Kind == pipeline.KindPayloadTooLarge {
			// o resto do corpo não foi lido; não reaproveita a conexão
			w.Header().Set("Connection", "close")
		}
		writeDetail(w, pe.Status(), pe.Detail)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}
