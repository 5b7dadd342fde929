// Package infra implementa os contratos de domain.
//
// Store guarda os timestamps de admissão por cliente em shards escolhidos por
// xxhash; o janitor remove clientes parados. ChanPool limita concorrência.
// Os stores de estatística contam decisões em memória e, opcionalmente, no Redis.
package infra
