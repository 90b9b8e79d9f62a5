package metrics

import (
	"strconv"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the booking-service Prometheus metrics.
type Collector struct {
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	slotsListed         prometheus.Histogram
	bookingAttempts     *prometheus.CounterVec
	statusTransitions   *prometheus.CounterVec
	outboxPublished     prometheus.Counter
	outboxPublishErrors prometheus.Counter
	outboxBacklog       prometheus.Gauge
	followups           *prometheus.CounterVec
}

// New registers the collectors on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		slotsListed: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "slots_listed",
				Help:      "Free slots returned per availability query",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		bookingAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_attempts_total",
				Help:      "Booking attempts by outcome",
			},
			[]string{"outcome"},
		),
		statusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Appointment status transitions",
			},
			[]string{"from", "to"},
		),
		outboxPublished: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox events delivered to Kafka",
			},
		),
		outboxPublishErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_publish_errors_total",
				Help:      "Failed outbox publish batches",
			},
		),
		outboxBacklog: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_backlog",
				Help:      "Outbox events not yet delivered",
			},
		),
		followups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "followups_total",
				Help:      "Processed follow-up messages by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveHTTP matches httpx.ObserveFunc.
func (c *Collector) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (c *Collector) SlotsListed(n int) {
	c.slotsListed.Observe(float64(n))
}

func (c *Collector) BookingAttempt(outcome string) {
	c.bookingAttempts.WithLabelValues(outcome).Inc()
}

func (c *Collector) StatusTransition(from, to model.Status) {
	c.statusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) OutboxPublished(n int, err error) {
	if err != nil {
		c.outboxPublishErrors.Inc()
		return
	}
	c.outboxPublished.Add(float64(n))
}

func (c *Collector) OutboxBacklog(n int) {
	c.outboxBacklog.Set(float64(n))
}

func (c *Collector) FollowupProcessed(outcome string) {
	c.followups.WithLabelValues(outcome).Inc()
}
