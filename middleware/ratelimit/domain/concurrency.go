package domain

import "context"

// SlotPool limita quantas operações correm ao mesmo tempo: uploads em
// andamento no HTTP ou chamadas ao motor de OCR.
//
// Acquire espera por uma vaga até o ctx acabar. O release devolvido pode ser
// chamado mais de uma vez; só a primeira chamada libera.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// SlotUsage é implementado por pools que sabem informar a ocupação atual.
type SlotUsage interface {
	InUse() int
	Capacity() int
}
