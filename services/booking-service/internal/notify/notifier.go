package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelBoth  Channel = "both"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelSMS, ChannelEmail, ChannelBoth:
		return c, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", s)
	}
}

var ErrNoRecipient = errors.New("no recipient for channel")

type Message struct {
	Channel  Channel
	Email    string
	Phone    string
	Subject  string
	SMSBody  string
	MailBody string
}

// Notifier dispatches messages by channel, throttled to protect the
// downstream SMS gateway and SMTP relay.
type Notifier struct {
	sms     SMSSender
	email   EmailSender
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNotifier allows perSecond sends with the given burst; perSecond <= 0
// disables throttling.
func NewNotifier(sms SMSSender, email EmailSender, perSecond float64, burst int, logger *slog.Logger) *Notifier {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	if sms == nil {
		sms = NoopSMSSender{}
	}
	if email == nil {
		email = NoopEmailSender{}
	}
	return &Notifier{
		sms:     sms,
		email:   email,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Delivery records which channels accepted a message.
type Delivery struct {
	SMS   bool
	Email bool
}

func (d Delivery) Any() bool {
	return d.SMS || d.Email
}

// Deliverable reports whether msg has an address for at least one of its channels.
func (m Message) Deliverable() bool {
	wantSMS, wantEmail := m.wants()
	return (wantSMS && strings.TrimSpace(m.Phone) != "") || (wantEmail && strings.TrimSpace(m.Email) != "")
}

func (m Message) wants() (sms, email bool) {
	return m.Channel == ChannelSMS || m.Channel == ChannelBoth,
		m.Channel == ChannelEmail || m.Channel == ChannelBoth
}

// Notify sends on every channel the message selects. With ChannelBoth a
// missing address on one side is skipped. The returned Delivery is accurate
// even when err is non-nil, so a partial send can be told apart from none.
func (n *Notifier) Notify(ctx context.Context, msg Message) (Delivery, error) {
	var d Delivery
	if !msg.Deliverable() {
		return d, fmt.Errorf("%w %s", ErrNoRecipient, msg.Channel)
	}
	wantSMS, wantEmail := msg.wants()
	phone := strings.TrimSpace(msg.Phone)
	email := strings.TrimSpace(msg.Email)

	var errs []error
	if wantSMS && phone != "" {
		if err := n.limiter.Wait(ctx); err != nil {
			return d, err
		}
		if err := n.sms.SendSMS(ctx, phone, msg.SMSBody); err != nil {
			errs = append(errs, fmt.Errorf("sms via %s: %w", n.sms.ProviderID(), err))
		} else {
			d.SMS = true
		}
	}
	if wantEmail && email != "" {
		if err := n.limiter.Wait(ctx); err != nil {
			return d, errors.Join(append(errs, err)...)
		}
		if err := n.email.SendEmail(ctx, email, msg.Subject, msg.MailBody); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			d.Email = true
		}
	}
	if n.logger != nil && d.Any() {
		n.logger.DebugContext(ctx, "notification sent", "channel", msg.Channel, "sms", d.SMS, "email", d.Email)
	}
	return d, errors.Join(errs...)
}
