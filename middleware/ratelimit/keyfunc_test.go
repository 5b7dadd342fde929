package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultKeyFunc(t *testing.T) {
	tt := []struct {
		desc       string
		keyHeader  string
		trustXFF   bool
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			desc:       "configured header wins",
			keyHeader:  "X-Client",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Client": " client-123 ", "X-Forwarded-For": "1.2.3.4"},
			want:       "client-123",
		},
		{
			desc:       "blank header falls back to remote host",
			keyHeader:  "X-Client",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Client": "   "},
			want:       "10.0.0.1",
		},
		{
			desc:       "trusted forwarded-for uses first hop",
			trustXFF:   true,
			remoteAddr: "10.0.0.9:5555",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"},
			want:       "1.2.3.4",
		},
		{
			desc:       "forwarded-for ignored unless trusted",
			remoteAddr: "10.0.0.9:5555",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			want:       "10.0.0.9",
		},
		{
			desc:       "empty forwarded-for entry falls back",
			trustXFF:   true,
			remoteAddr: "10.0.0.9:5555",
			headers:    map[string]string{"X-Forwarded-For": " , 5.6.7.8"},
			want:       "10.0.0.9",
		},
		{
			desc:       "ipv6 remote address",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			desc:       "remote address without port",
			remoteAddr: "pipe",
			want:       "pipe",
		},
		{
			desc: "no remote address",
			want: "unknown",
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "http://example/upload/", nil)
			r.RemoteAddr = ts.remoteAddr
			for k, v := range ts.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, ts.want, DefaultKeyFunc(ts.keyHeader, ts.trustXFF)(r))
		})
	}
}
