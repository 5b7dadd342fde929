package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ocr-gateway/middleware/ratelimit/domain"
)

const (
	fieldAllowed = "allowed"
	fieldDenied  = "denied"

	BucketMinute = "minute"
	BucketNone   = "none"
)

// RedisStatsStore mantém contadores de admissão no Redis:
//
//	<prefix>:total                 hash allowed/denied, sem expiração
//	<prefix>:minute:YYYYMMDDhhmm   hash allowed/denied, expira em ttl
//	<prefix>:route                 hash "<rota>:allowed" / "<rota>:denied"
//	<prefix>:key:<cliente>         hash allowed/denied (só com trackKeys)
//
// É só estatística; a janela de admissão nunca sai da memória do processo.
type RedisStatsStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita BucketMinute ou BucketNone.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

// WithStatsTrackKeys grava um hash por cliente. Cuidado com cardinalidade.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ocr:ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: BucketMinute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) TotalKey() string { return s.prefix + ":total" }
func (s *RedisStatsStore) RouteKey() string { return s.prefix + ":route" }

func (s *RedisStatsStore) MinuteKey(at time.Time) string {
	return s.prefix + ":minute:" + at.UTC().Format("200601021504")
}

func (s *RedisStatsStore) ClientKey(k domain.Key) string {
	return s.prefix + ":key:" + string(k)
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := fieldDenied
	if ev.Allowed {
		field = fieldAllowed
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.TotalKey(), field, 1)
		if s.bucket == BucketMinute {
			s.incrExpiring(ctx, pipe, s.MinuteKey(at), field)
		}
		if route := strings.TrimSpace(ev.Route); route != "" {
			pipe.HIncrBy(ctx, s.RouteKey(), route+":"+field, 1)
		}
		if k := domain.Key(strings.TrimSpace(string(ev.Key))); s.trackKeys && k != "" {
			s.incrExpiring(ctx, pipe, s.ClientKey(k), field)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record admission stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Total lê o contador cumulativo.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	return s.counters(ctx, s.TotalKey())
}

// Minute lê o bucket do minuto que contém at.
func (s *RedisStatsStore) Minute(ctx context.Context, at time.Time) (Counters, error) {
	return s.counters(ctx, s.MinuteKey(at))
}

// ByRoute devolve os contadores por rota.
func (s *RedisStatsStore) ByRoute(ctx context.Context) (map[string]Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.RouteKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read admission stats: %w", err)
	}
	out := make(map[string]Counters, len(raw)/2)
	for f, v := range raw {
		i := strings.LastIndexByte(f, ':')
		if i <= 0 {
			continue
		}
		route, kind := f[:i], f[i+1:]
		c := out[route]
		switch kind {
		case fieldAllowed:
			c.Allowed = parseCounter(v)
		case fieldDenied:
			c.Denied = parseCounter(v)
		default:
			continue
		}
		out[route] = c
	}
	return out, nil
}

func (s *RedisStatsStore) counters(ctx context.Context, key string) (Counters, error) {
	vals, err := s.rdb.HMGet(ctx, key, fieldAllowed, fieldDenied).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read admission stats: %w", err)
	}
	return Counters{Allowed: parseCounter(vals[0]), Denied: parseCounter(vals[1])}, nil
}

func parseCounter(v any) int64 {
	s, _ := v.(string)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
