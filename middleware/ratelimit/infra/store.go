package infra

import (
	"sync"
	"time"

	"ocr-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

// Store é uma implementação de janela deslizante em memória, com um mapa por
// shard (lock por shard) e limpeza periódica de clientes inativos.
//
// Cada chave guarda os instantes das admissões ainda dentro da janela.
type Store struct {
	shards       []*shard
	limit        int
	window       time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	stamps   []time.Time
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithShards define quantos locks independentes dividem o mapa de clientes.
func WithShards(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

// WithClock troca o relógio usado pela limpeza (Admit recebe o instante explicitamente).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(limit int, window time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		shards:       make([]*shard, 32),
		limit:        max(limit, 0),
		window:       window,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	// remover antes de sair da janela mudaria a decisão seguinte
	if s.idleTTL < s.window {
		s.idleTTL = s.window
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*windowEntry)}
	}
	return s
}

func (s *Store) Limit() int                  { return s.limit }
func (s *Store) Window() time.Duration       { return s.window }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Admit implementa domain.WindowStore: poda os instantes <= now-window, nega sem
// registrar se a janela já está cheia, caso contrário registra now e admite.
func (s *Store) Admit(key domain.Key, now time.Time) domain.Admission {
	sh := s.shardFor(string(key))

	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[string(key)]
	if !ok {
		ent = &windowEntry{}
		sh.entries[string(key)] = ent
	}
	ent.lastSeen = now

	cutoff := now.Add(-s.window)
	kept := ent.stamps[:0]
	for _, ts := range ent.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	ent.stamps = kept

	if len(ent.stamps) >= s.limit {
		adm := domain.Admission{Allowed: false, Count: len(ent.stamps), ResetAt: now.Add(s.window)}
		if len(ent.stamps) > 0 {
			adm.ResetAt = ent.stamps[0].Add(s.window)
		}
		return adm
	}

	ent.stamps = append(ent.stamps, now)
	return domain.Admission{
		Allowed: true,
		Count:   len(ent.stamps),
		ResetAt: ent.stamps[0].Add(s.window),
	}
}

// Len retorna quantos clientes estão no mapa (útil para métricas e testes).
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Cleanup remove clientes sem atividade há mais de idleTTL.
// Como idleTTL >= window, toda entrada removida já estaria vazia após a poda.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, ent := range sh.entries {
			if !ent.lastSeen.After(cutoff) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}
