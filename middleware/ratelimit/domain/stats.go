package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão de admissão já tomada. Route é texto livre
// ("/upload/"). Gravar Key por cliente aumenta a cardinalidade no Redis.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Route   string
	At      time.Time
}

// StatsStore recebe os eventos. Falha aqui é logada e ignorada; a janela
// de admissão não depende do que foi gravado.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
