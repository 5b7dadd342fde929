package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"ocr-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_Record(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: true, Route: "POST /upload/"}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: false, Route: "POST /upload/"}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "b", Allowed: true}))

	assert.Equal(t, Counters{Allowed: 2, Denied: 1}, s.Total())
	assert.Equal(t, map[string]Counters{"POST /upload/": {Allowed: 1, Denied: 1}}, s.ByRoute())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByKey()["a"])
	assert.Equal(t, Counters{Allowed: 1}, s.ByKey()["b"])
}

func TestRedisStatsStore_Record(t *testing.T) {
	tt := []struct {
		desc      string
		events    []domain.StatsEvent
		total     Counters
		byRoute   map[string]Counters
		trackKeys bool
	}{
		{
			desc: "counts allowed and denied",
			events: []domain.StatsEvent{
				{Key: "10.0.0.1", Allowed: true, Route: "POST /upload/"},
				{Key: "10.0.0.1", Allowed: true, Route: "POST /upload/"},
				{Key: "10.0.0.1", Allowed: false, Route: "POST /upload/"},
			},
			total:   Counters{Allowed: 2, Denied: 1},
			byRoute: map[string]Counters{"POST /upload/": {Allowed: 2, Denied: 1}},
		},
		{
			desc: "tracks keys when enabled",
			events: []domain.StatsEvent{
				{Key: "10.0.0.2", Allowed: false},
			},
			total:     Counters{Denied: 1},
			byRoute:   map[string]Counters{},
			trackKeys: true,
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			server, err := miniredis.Run()
			require.NoError(t, err)
			defer server.Close()

			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			defer client.Close()

			at := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)
			store := NewRedisStatsStore(client, WithStatsPrefix("test:stats:"), WithStatsTrackKeys(ts.trackKeys), WithStatsTTL(time.Hour))

			ctx := context.Background()
			for _, ev := range ts.events {
				ev.At = at
				require.NoError(t, store.Record(ctx, ev))
			}

			total, err := store.Total(ctx)
			require.NoError(t, err)
			assert.Equal(t, ts.total, total)

			minuteKey := store.MinuteKey(at)
			assert.Equal(t, "test:stats:minute:202406231015", minuteKey)
			assert.True(t, server.Exists(minuteKey))
			assert.Equal(t, time.Hour, server.TTL(minuteKey))

			byRoute, err := store.ByRoute(ctx)
			require.NoError(t, err)
			assert.Equal(t, ts.byRoute, byRoute)

			minute, err := store.Minute(ctx, at.Add(20*time.Second))
			require.NoError(t, err)
			assert.Equal(t, ts.total, minute)

			if ts.trackKeys {
				assert.True(t, server.Exists("test:stats:key:10.0.0.2"))
			} else {
				assert.False(t, server.Exists("test:stats:key:10.0.0.1"))
			}
		})
	}
}

func TestRedisStatsStore_RecordFailsWhenRedisDown(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	store := NewRedisStatsStore(client)
	err = store.Record(context.Background(), domain.StatsEvent{Key: "k", Allowed: true})
	assert.Error(t, err)
}

func TestMultiStats_FansOut(t *testing.T) {
	a := NewMemoryStatsStore()
	b := NewMemoryStatsStore()

	require.NoError(t, MultiStats{a, nil, b}.Record(context.Background(), domain.StatsEvent{Allowed: true}))
	assert.Equal(t, int64(1), a.Total().Allowed)
	assert.Equal(t, int64(1), b.Total().Allowed)
}

func TestRedisStatsStore_NoMinuteBucket(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	at := time.Date(2024, time.June, 23, 10, 15, 0, 0, time.UTC)
	store := NewRedisStatsStore(client, WithStatsBucket("NONE"))
	require.NoError(t, store.Record(context.Background(), domain.StatsEvent{Allowed: true, At: at}))

	assert.Equal(t, "ocr:ratelimit:stats:total", store.TotalKey())
	assert.True(t, server.Exists(store.TotalKey()))
	assert.False(t, server.Exists(store.MinuteKey(at)))
}

func TestRedisStatsStore_ByRouteKeepsColonsInRoute(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStatsStore(client)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, domain.StatsEvent{Allowed: false, Route: "POST http://x/upload/"}))
	server.HSet(store.RouteKey(), "garbage", "7")

	got, err := store.ByRoute(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]Counters{"POST http://x/upload/": {Denied: 1}}, got)
}

func TestMultiStats_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := statsFunc(func(context.Context, domain.StatsEvent) error { return boom })
	mem := NewMemoryStatsStore()

	err := MultiStats{failing, mem}.Record(context.Background(), domain.StatsEvent{Allowed: true})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), mem.Total().Allowed, "later stores still receive the event")
}

type statsFunc func(context.Context, domain.StatsEvent) error

func (f statsFunc) Record(ctx context.Context, ev domain.StatsEvent) error { return f(ctx, ev) }
