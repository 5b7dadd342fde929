package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ocr-gateway/middleware/ratelimit/domain"
)

// Service transforma a consulta à janela numa Decision. Sem Store, tudo passa.
type Service struct {
	Store domain.WindowStore
	Stats domain.StatsStore
	// StatsTimeout limita cada Record; 0 usa só o ctx da requisição.
	StatsTimeout time.Duration
	// Logger recebe falhas de Stats; nil descarta.
	Logger *zap.Logger
	Now    func() time.Time
}

func (s Service) Decide(ctx context.Context, key domain.Key, route string) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	adm := s.Store.Admit(key, now)
	if s.Stats != nil {
		s.record(ctx, domain.StatsEvent{Key: key, Allowed: adm.Allowed, Route: route, At: now})
	}

	limit := s.Store.Limit()
	dec := domain.Decision{
		Allowed:   adm.Allowed,
		Limit:     limit,
		Remaining: max(limit-adm.Count, 0),
	}
	if !adm.Allowed {
		dec.RetryAfter = max(adm.ResetAt.Sub(now), time.Second)
	}
	return dec
}

func (s Service) record(ctx context.Context, ev domain.StatsEvent) {
	if s.StatsTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.StatsTimeout)
		defer cancel()
	}
	if err := s.Stats.Record(ctx, ev); err != nil && s.Logger != nil {
		s.Logger.Warn("admission stats not recorded", zap.String("client", string(ev.Key)), zap.Error(err))
	}
}
