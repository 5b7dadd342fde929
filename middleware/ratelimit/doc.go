// Package ratelimit liga o rate limit ao HTTP: extrai a chave do cliente e
// escreve Retry-After e X-RateLimit-*.
//
// A admissão por janela deslizante fica em application.Service e o limite de
// uploads em application.ConcurrencyService. O pipeline chama os dois, nessa
// ordem, antes de o corpo ser lido. Os subpacotes seguem camadas:
// domain (contratos), application (casos de uso) e infra (stores e pools).
package ratelimit
