package main

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/libs/runtime"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/notify"
	"github.com/redis/go-redis/v9"
)

// newRateLimiter returns a Redis fixed-window limiter when redisURL is set,
// otherwise a per-process token bucket.
func newRateLimiter(redisURL string, perMinute int) (httpx.Limiter, *runtime.ReadyCheck, func(), error) {
	if redisURL == "" {
		return httpx.NewMemoryRateLimiter(perMinute, time.Minute), nil, func() {}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	rdb := redis.NewClient(opts)
	check := &runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}
	limiter := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "apptbook:ratelimit:public")
	return limiter, check, func() { _ = rdb.Close() }, nil
}

// publicMiddleware applies CORS and the per-client rate limit. Clients are
// keyed by peer address unless the peer is one of trustedProxies.
func publicMiddleware(origins string, limiter httpx.Limiter, trustedProxies []netip.Prefix, failOpen bool, logger *slog.Logger) httpx.Middleware {
	cors := httpx.WithCORS(httpx.PublicBookingCORS(origins))
	limit := httpx.RateLimitBy(limiter, httpx.NewClientIP(trustedProxies).Key, logger, failOpen)
	return func(next http.Handler) http.Handler {
		return httpx.Chain(next, cors, limit)
	}
}

func newNotifier(logger *slog.Logger) *notify.Notifier {
	var sms notify.SMSSender = notify.NoopSMSSender{}
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		sms = notify.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	}
	var email notify.EmailSender = notify.NoopEmailSender{}
	if host := config.String("SMTP_HOST", ""); host != "" {
		email = notify.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
	}
	return notify.NewNotifier(sms, email,
		config.Float("NOTIFY_RATE_PER_SECOND", 5),
		config.Int("NOTIFY_BURST", 5),
		logger,
	)
}
