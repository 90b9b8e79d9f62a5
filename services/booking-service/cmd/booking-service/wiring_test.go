package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_Memory(t *testing.T) {
	l, check, closeFn, err := newRateLimiter("", 2)
	require.NoError(t, err)
	defer closeFn()
	assert.Nil(t, check)

	ok, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRateLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	l, check, closeFn, err := newRateLimiter("redis://"+mr.Addr(), 1)
	require.NoError(t, err)
	defer closeFn()
	require.NotNil(t, check)
	assert.Equal(t, "redis", check.Name)
	require.NoError(t, check.Check(context.Background()))

	ctx := context.Background()
	ok, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, _, err = newRateLimiter("://bad", 1)
	assert.Error(t, err)
}

func TestPublicMiddleware(t *testing.T) {
	l, _, closeFn, err := newRateLimiter("", 1)
	require.NoError(t, err)
	defer closeFn()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := publicMiddleware("https://widget.example.com", l, nil, true, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	req.Header.Set("Origin", "https://widget.example.com")
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://widget.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPublicMiddleware_ForwardedForOnlyFromTrustedProxy(t *testing.T) {
	l, _, closeFn, err := newRateLimiter("", 1)
	require.NoError(t, err)
	defer closeFn()
	trusted, err := httpx.ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := publicMiddleware("*", l, trusted, true, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func(remote, xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5555", "198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5555", "198.51.100.2"))

	assert.Equal(t, http.StatusOK, send("203.0.113.9:5555", "198.51.100.3"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9:5555", "198.51.100.4"))
}
