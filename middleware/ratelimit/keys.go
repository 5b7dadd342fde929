package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extrai o identificador do cliente usado para agrupar admissões.
type KeyFunc func(r *http.Request) string

const unknownClient = "unknown"

// DefaultKeyFunc escolhe, nesta ordem: o header keyHeader (se configurado),
// o primeiro IP do X-Forwarded-For (se trustXFF) e o host de RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if k := headerKey(r, keyHeader); k != "" {
			return k
		}
		if trustXFF {
			if k := forwardedKey(r); k != "" {
				return k
			}
		}
		return remoteKey(r.RemoteAddr)
	}
}

func headerKey(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(name))
}

func forwardedKey(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	return strings.TrimSpace(first)
}

func remoteKey(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr == "" {
		return unknownClient
	}
	return addr
}
