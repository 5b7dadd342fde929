package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"ocr-gateway/middleware/ratelimit/domain"
)

const (
	HeaderRetryAfter = "Retry-After"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
)

// WriteHeaders escreve a decisão nos headers. Retry-After vai só em negação;
// X-RateLimit-* só com withLimits.
func WriteHeaders(w http.ResponseWriter, dec domain.Decision, withLimits bool) {
	h := w.Header()
	if withLimits {
		h.Set(HeaderLimit, strconv.Itoa(dec.Limit))
		h.Set(HeaderRemaining, strconv.Itoa(dec.Remaining))
	}
	if !dec.Allowed && dec.RetryAfter > 0 {
		h.Set(HeaderRetryAfter, RetryAfterSeconds(dec.RetryAfter))
	}
}

// RetryAfterSeconds arredonda para cima: 55.2s vira "56".
func RetryAfterSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}
