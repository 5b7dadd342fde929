package domain

import "time"

// Key identifica um cliente (IP ou valor de header).
type Key string

// Admission é o resultado bruto de uma consulta à janela deslizante de uma chave.
type Admission struct {
	Allowed bool
	// Count é o número de admissões dentro da janela após a decisão.
	Count int
	// ResetAt é quando a admissão mais antiga sai da janela (libera uma vaga).
	ResetAt time.Time
}

// WindowStore mantém, por chave, os instantes das admissões recentes.
//
// Admit executa podar -> decidir -> registrar de forma atômica para a mesma chave.
// Chaves diferentes não podem influenciar a contagem uma da outra.
type WindowStore interface {
	Admit(key Key, now time.Time) Admission
	Limit() int
	Window() time.Duration
}

// Decision é o que o pipeline e o HTTP enxergam da admissão.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
