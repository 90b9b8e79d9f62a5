package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSMS struct {
	mu   sync.Mutex
	to   []string
	fail error
}

func (r *recordingSMS) ProviderID() string { return "recording" }

func (r *recordingSMS) SendSMS(_ context.Context, to, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.to = append(r.to, to)
	return nil
}

type recordingEmail struct {
	to       []string
	subjects []string
	fail     error
}

func (r *recordingEmail) SendEmail(_ context.Context, to, subject, _ string) error {
	if r.fail != nil {
		return r.fail
	}
	r.to = append(r.to, to)
	r.subjects = append(r.subjects, subject)
	return nil
}

func TestNotifierChannels(t *testing.T) {
	ctx := context.Background()
	sms := &recordingSMS{}
	mail := &recordingEmail{}
	n := NewNotifier(sms, mail, 0, 1, nil)

	d, err := n.Notify(ctx, Message{Channel: ChannelSMS, Phone: "+254700000001", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, Delivery{SMS: true}, d)
	assert.Equal(t, []string{"+254700000001"}, sms.to)
	assert.Empty(t, mail.to)

	d, err = n.Notify(ctx, Message{Channel: ChannelBoth, Phone: "+254700000002", Email: "b@example.com", Subject: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, Delivery{SMS: true, Email: true}, d)
	assert.Len(t, sms.to, 2)
	assert.Equal(t, []string{"b@example.com"}, mail.to)

	// Both with only an email still delivers.
	d, err = n.Notify(ctx, Message{Channel: ChannelBoth, Email: "c@example.com"})
	require.NoError(t, err)
	assert.Equal(t, Delivery{Email: true}, d)
	assert.Len(t, mail.to, 2)

	d, err = n.Notify(ctx, Message{Channel: ChannelEmail, Phone: "+254700000003"})
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.False(t, d.Any())
}

func TestNotifierPartialDelivery(t *testing.T) {
	sms := &recordingSMS{}
	mail := &recordingEmail{fail: errors.New("relay refused")}
	n := NewNotifier(sms, mail, 0, 1, nil)

	d, err := n.Notify(context.Background(), Message{Channel: ChannelBoth, Phone: "+1", Email: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay refused")
	assert.Equal(t, Delivery{SMS: true}, d)
	assert.True(t, d.Any())
}

func TestNotifierReportsSenderFailure(t *testing.T) {
	sms := &recordingSMS{fail: errors.New("gateway down")}
	n := NewNotifier(sms, &recordingEmail{fail: errors.New("relay down")}, 0, 1, nil)
	d, err := n.Notify(context.Background(), Message{Channel: ChannelBoth, Phone: "+1", Email: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
	assert.False(t, d.Any())
}

func TestMessageDeliverable(t *testing.T) {
	assert.True(t, Message{Channel: ChannelSMS, Phone: "+1"}.Deliverable())
	assert.False(t, Message{Channel: ChannelSMS, Email: "x@example.com"}.Deliverable())
	assert.True(t, Message{Channel: ChannelBoth, Email: "x@example.com"}.Deliverable())
	assert.False(t, Message{Channel: ChannelEmail, Email: "  "}.Deliverable())
}

func TestNotifierHonoursCancelledContext(t *testing.T) {
	n := NewNotifier(&recordingSMS{}, nil, 0.001, 1, nil)
	ctx := context.Background()
	_, err := n.Notify(ctx, Message{Channel: ChannelSMS, Phone: "+1"})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = n.Notify(cancelled, Message{Channel: ChannelSMS, Phone: "+1"})
	assert.Error(t, err)
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel(" Both ")
	require.NoError(t, err)
	assert.Equal(t, ChannelBoth, c)
	_, err = ParseChannel("pigeon")
	assert.Error(t, err)
}

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "secret")
	require.NoError(t, s.SendSMS(context.Background(), "+254700000001", "hello"))
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, map[string]string{"to": "+254700000001", "body": "hello"}, got)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	assert.Error(t, NewWebhookSender(failing.URL, "").SendSMS(context.Background(), "+1", "x"))
	assert.Error(t, NewWebhookSender("", "").SendSMS(context.Background(), "+1", "x"))
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@x", "to@x", "Subject", "Body")
	assert.Contains(t, msg, "Subject: Subject\r\n")
	assert.Contains(t, msg, "\r\n\r\nBody\r\n")
}
