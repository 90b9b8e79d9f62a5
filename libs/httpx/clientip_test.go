package httpx

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP_Key(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8, 127.0.0.1")
	require.NoError(t, err)
	c := NewClientIP(trusted)

	cases := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{"untrusted peer ignores header", "203.0.113.7:5000", []string{"9.9.9.9"}, "203.0.113.7"},
		{"trusted peer without header", "10.1.2.3:5000", nil, "10.1.2.3"},
		{"trusted peer uses right-most client", "10.1.2.3:5000", []string{"1.1.1.1, 9.9.9.9"}, "9.9.9.9"},
		{"skips trusted hops", "127.0.0.1:5000", []string{"9.9.9.9, 10.0.0.5"}, "9.9.9.9"},
		{"repeated headers joined", "10.1.2.3:5000", []string{"1.1.1.1", "9.9.9.9"}, "9.9.9.9"},
		{"garbage hop stops the walk", "10.1.2.3:5000", []string{"9.9.9.9, nonsense, 10.0.0.9"}, "10.0.0.9"},
		{"unparseable peer kept verbatim", "pipe", nil, "pipe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, c.Key(r))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ParseTrustedProxies("192.168.1.9/16, ::1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "192.168.0.0/16", got[0].String())
	assert.Equal(t, "::1/128", got[1].String())

	_, err = ParseTrustedProxies("10.0.0.0/8, not-an-ip")
	require.Error(t, err)
}

func TestRateLimit_RotatingForwardedForDoesNotBypass(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RateLimit(NewMemoryRateLimiter(1, time.Hour), nil, false)(next)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if i == 0 {
			assert.Equal(t, http.StatusNoContent, rw.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rw.Code, "request %d", i)
		}
	}
}

func TestRateLimitBy_TrustedProxySeparatesClients(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RateLimitBy(NewMemoryRateLimiter(1, time.Hour), NewClientIP(trusted).Key, nil, false)(next)

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
		req.RemoteAddr = "10.0.0.2:443"
		req.Header.Set("X-Forwarded-For", client)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1"))
	assert.Equal(t, http.StatusNoContent, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
}
