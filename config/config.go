// Package config carrega a configuração do gateway de OCR.
//
// A ordem de precedência é a do viper: variável de ambiente > arquivo YAML
// opcional > default. As chaves são os próprios nomes das variáveis (ex:
// MAX_UPLOAD_SIZE); no YAML usamos a forma minúscula (max_upload_size).
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	keyListenAddr         = "listen_addr"
	keyShutdownTimeout    = "shutdown_timeout"
	keyMaxUploadSize      = "max_upload_size"
	keyUploadChunkSize    = "upload_chunk_size"
	keyRateLimitRequests  = "rate_limit_requests"
	keyRateLimitWindow    = "rate_limit_window"
	keyRateKeyHeader      = "rate_key_header"
	keyTrustXFF           = "trust_xff"
	keyAddHeaders         = "add_ratelimit_headers"
	keyRateShards         = "rate_shards"
	keyRateIdleTTL        = "rate_idle_ttl"
	keyRateCleanupEvery   = "rate_cleanup_every"
	keyConcurrencyMax     = "concurrency_max"
	keyConcurrencyTimeout = "concurrency_timeout"
	keyEngineConcurrency  = "engine_concurrency"
	keyOCRLanguages       = "ocr_languages"
	keyLogLevel           = "log_level"
	keyLogFormat          = "log_format"

	keyStatsEnabled       = "rate_stats_enabled"
	keyStatsRedisAddr     = "rate_stats_redis_addr"
	keyStatsRedisPassword = "rate_stats_redis_password"
	keyStatsRedisDB       = "rate_stats_redis_db"
	keyStatsPrefix        = "rate_stats_prefix"
	keyStatsTTL           = "rate_stats_ttl"
	keyStatsBucket        = "rate_stats_bucket"
	keyStatsTrackKeys     = "rate_stats_track_keys"
	keyStatsTimeout       = "rate_stats_timeout"
)

type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration

	MaxUploadSize   int64
	UploadChunkSize int

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateKeyHeader     string
	TrustXFF          bool
	AddHeaders        bool
	RateShards        int
	RateIdleTTL       time.Duration
	RateCleanupEvery  time.Duration

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration
	EngineConcurrency  int
	OCRLanguages       []string

	LogLevel  string
	LogFormat string

	Stats StatsConfig
}

// StatsConfig controla as estatísticas de admissão no Redis. O estado do rate
// limit em si continua só em memória.
type StatsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Bucket        string
	TrackKeys     bool
	// Timeout limita cada gravação e as operações do cliente Redis.
	Timeout time.Duration
}

// SetDefaults registra os valores padrão em v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(keyListenAddr, ":8000")
	v.SetDefault(keyShutdownTimeout, "10s")
	v.SetDefault(keyMaxUploadSize, 10*1024*1024)
	v.SetDefault(keyUploadChunkSize, 1024*1024)
	v.SetDefault(keyRateLimitRequests, 10)
	v.SetDefault(keyRateLimitWindow, "60s")
	v.SetDefault(keyRateKeyHeader, "")
	v.SetDefault(keyTrustXFF, false)
	v.SetDefault(keyAddHeaders, true)
	v.SetDefault(keyRateShards, 32)
	v.SetDefault(keyRateIdleTTL, "15m")
	v.SetDefault(keyRateCleanupEvery, "2m")
	v.SetDefault(keyConcurrencyMax, 100)
	v.SetDefault(keyConcurrencyTimeout, "0s")
	v.SetDefault(keyEngineConcurrency, 1)
	v.SetDefault(keyOCRLanguages, "eng")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "json")

	v.SetDefault(keyStatsEnabled, false)
	v.SetDefault(keyStatsRedisAddr, "")
	v.SetDefault(keyStatsRedisPassword, "")
	v.SetDefault(keyStatsRedisDB, 0)
	v.SetDefault(keyStatsPrefix, "ocr:ratelimit:stats")
	v.SetDefault(keyStatsTTL, "24h")
	v.SetDefault(keyStatsBucket, "minute")
	v.SetDefault(keyStatsTrackKeys, false)
	v.SetDefault(keyStatsTimeout, "200ms")
}

// Load aplica defaults, lê o arquivo (se file != "") e as variáveis de
// ambiente, e valida o resultado.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	window, err := durationOrSeconds(v.GetString(keyRateLimitWindow))
	if err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
	}

	cfg := Config{
		ListenAddr:      v.GetString(keyListenAddr),
		ShutdownTimeout: v.GetDuration(keyShutdownTimeout),

		MaxUploadSize:   v.GetInt64(keyMaxUploadSize),
		UploadChunkSize: v.GetInt(keyUploadChunkSize),

		RateLimitRequests: v.GetInt(keyRateLimitRequests),
		RateLimitWindow:   window,
		RateKeyHeader:     strings.TrimSpace(v.GetString(keyRateKeyHeader)),
		TrustXFF:          v.GetBool(keyTrustXFF),
		AddHeaders:        v.GetBool(keyAddHeaders),
		RateShards:        v.GetInt(keyRateShards),
		RateIdleTTL:       v.GetDuration(keyRateIdleTTL),
		RateCleanupEvery:  v.GetDuration(keyRateCleanupEvery),

		ConcurrencyMax:     v.GetInt(keyConcurrencyMax),
		ConcurrencyTimeout: v.GetDuration(keyConcurrencyTimeout),
		EngineConcurrency:  v.GetInt(keyEngineConcurrency),
		OCRLanguages:       splitList(v.GetString(keyOCRLanguages)),

		LogLevel:  strings.ToLower(v.GetString(keyLogLevel)),
		LogFormat: strings.ToLower(v.GetString(keyLogFormat)),

		Stats: StatsConfig{
			Enabled:       v.GetBool(keyStatsEnabled),
			RedisAddr:     strings.TrimSpace(v.GetString(keyStatsRedisAddr)),
			RedisPassword: v.GetString(keyStatsRedisPassword),
			RedisDB:       v.GetInt(keyStatsRedisDB),
			Prefix:        v.GetString(keyStatsPrefix),
			TTL:           v.GetDuration(keyStatsTTL),
			Bucket:        strings.ToLower(strings.TrimSpace(v.GetString(keyStatsBucket))),
			TrackKeys:     v.GetBool(keyStatsTrackKeys),
			Timeout:       v.GetDuration(keyStatsTimeout),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be > 0"))
	}
	if c.UploadChunkSize <= 0 {
		errs = append(errs, errors.New("UPLOAD_CHUNK_SIZE must be > 0"))
	}
	if c.RateLimitRequests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must be >= 0"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.RateShards < 1 {
		errs = append(errs, errors.New("RATE_SHARDS must be >= 1"))
	}
	if c.RateIdleTTL < 0 || c.RateCleanupEvery < 0 {
		errs = append(errs, errors.New("RATE_IDLE_TTL and RATE_CLEANUP_EVERY must be >= 0"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.ConcurrencyTimeout < 0 {
		errs = append(errs, errors.New("CONCURRENCY_TIMEOUT must be >= 0"))
	}
	if c.EngineConcurrency < 1 {
		errs = append(errs, errors.New("ENGINE_CONCURRENCY must be >= 1"))
	}
	if len(c.OCRLanguages) == 0 {
		errs = append(errs, errors.New("OCR_LANGUAGES must name at least one language"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if b := c.Stats.Bucket; b != "minute" && b != "none" {
		errs = append(errs, fmt.Errorf("RATE_STATS_BUCKET must be minute or none, got %q", b))
	}
	if c.Stats.Timeout <= 0 {
		errs = append(errs, errors.New("RATE_STATS_TIMEOUT must be > 0"))
	}
	if c.Stats.Enabled && c.Stats.RedisAddr == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}

// durationOrSeconds aceita "60s"/"1m" ou um inteiro puro em segundos ("60").
// O viper sozinho leria "60" como 60ns.
func durationOrSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
