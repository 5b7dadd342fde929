package infra

import (
	"context"
	"sync"

	"ocr-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo sobre channel bufferizado. Capacidade 1 serializa
// (motor de OCR que não aceita chamadas paralelas).
type ChanPool struct {
	slots chan struct{}
}

var (
	_ domain.SlotPool  = (*ChanPool)(nil)
	_ domain.SlotUsage = (*ChanPool)(nil)
)

func NewChanPool(capacity int) *ChanPool {
	return &ChanPool{slots: make(chan struct{}, max(capacity, 1))}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, false
	}
	// vaga livre e ctx cancelado podem disputar o select
	if ctx.Err() != nil {
		<-p.slots
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { <-p.slots }) }, true
}

func (p *ChanPool) InUse() int    { return len(p.slots) }
func (p *ChanPool) Capacity() int { return cap(p.slots) }
