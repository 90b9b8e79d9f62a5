package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestToMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	created := time.Date(2026, 1, 26, 6, 0, 0, 0, time.UTC)
	rec := Record{
		ID:          7,
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   "booking.appointment.booked.v1",
		Payload:     []byte(`{"appointment_id":"appt-1"}`),
		Trace:       otelx.TraceCarrier{Parent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		CreatedAt:   created,
	}

	msg := ToMessage(context.Background(), rec)
	assert.Equal(t, rec.EventType, msg.Topic)
	assert.Equal(t, "appt-1", string(msg.Key))
	assert.Equal(t, "evt-1", kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))
	assert.Equal(t, rec.EventType, kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType))
	assert.Equal(t, rec.Trace.Parent, kafkax.HeaderValue(msg.Headers, "traceparent"))
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", "booking.appointment.booked.v1", map[string]string{"status": "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, "appointment", evt.AggregateType)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(evt.Payload))

	_, err = NewEvent("appointment", "appt-1", "x", func() {})
	assert.Error(t, err)
}

func TestToMessage_WithoutTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	msg := ToMessage(context.Background(), Record{EventID: "evt-2", AggregateID: "appt-2", EventType: "booking.appointment.cancelled.v1"})
	assert.Empty(t, kafkax.HeaderValue(msg.Headers, "traceparent"))
	assert.Equal(t, "evt-2", kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))
}
