package application

import (
	"context"
	"errors"
	"time"

	"ocr-gateway/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga foi obtida (timeout ou ctx cancelado).
var ErrNoSlot = errors.New("no slot available")

// ConcurrencyService espera por uma vaga com prazo opcional. O pipeline usa
// para limitar uploads em andamento, logo depois da admissão.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - Sem Pool, sempre libera (release no-op).
//   - Se `AcquireTimeout <= 0`, espera até o ctx encerrar.
//   - Se `AcquireTimeout > 0`, espera no máximo o timeout.
//
// Em caso de erro nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(ErrNoSlot, err)
		}
		return nil, ErrNoSlot
	}
	return release, nil
}
