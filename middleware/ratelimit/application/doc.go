// Package application junta os contratos de domain em casos de uso.
//
// Service decide se um cliente ainda cabe na janela e registra a decisão nas
// estatísticas. ConcurrencyService espera por uma vaga com prazo. Nenhum dos
// dois sabe de HTTP.
package application
