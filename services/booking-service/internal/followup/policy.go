package followup

import (
	"math"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/config"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/notify"
)

const (
	DefaultEmailSubject = "We Miss You! Book Your Next Session"
	DefaultSMSTemplate  = "Hi {customer_name}! We hope you enjoyed your {service_name}. Ready for your next session? Book now: {booking_link}"
	DefaultEmailBody    = "Hi {customer_name},\n\nThank you for visiting {branch_name} for your {service_name}. We would love to see you again.\n\nBook your next session: {booking_link}\n"
)

// Settings controls follow-up messages sent after completed appointments.
type Settings struct {
	Enabled       bool
	Channel       notify.Channel
	StartAfter    time.Duration
	RepeatEvery   time.Duration
	MaxCount      int
	UntilRebooked bool
	EmailSubject  string
	EmailTemplate string
	SMSTemplate   string
	BookingLink   string
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:       false,
		Channel:       notify.ChannelBoth,
		StartAfter:    14 * 24 * time.Hour,
		RepeatEvery:   7 * 24 * time.Hour,
		MaxCount:      3,
		EmailSubject:  DefaultEmailSubject,
		EmailTemplate: DefaultEmailBody,
		SMSTemplate:   DefaultSMSTemplate,
	}
}

// SettingsFromEnv reads FOLLOWUP_* variables on top of DefaultSettings.
// An unknown channel keeps the default.
func SettingsFromEnv() Settings {
	s := DefaultSettings()
	s.Enabled = config.Bool("FOLLOWUP_ENABLED", s.Enabled)
	if c, err := notify.ParseChannel(config.String("FOLLOWUP_CHANNEL", string(s.Channel))); err == nil {
		s.Channel = c
	}
	if d := config.Int("FOLLOWUP_START_DAYS", 14); d >= 0 {
		s.StartAfter = time.Duration(d) * 24 * time.Hour
	}
	if d := config.Int("FOLLOWUP_REPEAT_DAYS", 7); d > 0 {
		s.RepeatEvery = time.Duration(d) * 24 * time.Hour
	}
	if n := config.Int("FOLLOWUP_MAX_COUNT", 3); n > 0 {
		s.MaxCount = n
	}
	s.UntilRebooked = config.Bool("FOLLOWUP_UNTIL_REBOOKED", false)
	s.EmailSubject = config.String("FOLLOWUP_EMAIL_SUBJECT", s.EmailSubject)
	s.EmailTemplate = config.String("FOLLOWUP_EMAIL_TEMPLATE", s.EmailTemplate)
	s.SMSTemplate = config.String("FOLLOWUP_SMS_TEMPLATE", s.SMSTemplate)
	s.BookingLink = config.String("FOLLOWUP_BOOKING_LINK", "")
	return s
}

// QueryLimit is the follow-up count below which appointments are still
// considered. Until-rebooked mode has no count limit.
func (s Settings) QueryLimit() int {
	if s.UntilRebooked {
		return math.MaxInt32
	}
	return s.MaxCount
}

// DueAt is when the next follow-up for appt should go out.
func (s Settings) DueAt(appt model.Appointment) (time.Time, bool) {
	if appt.NextFollowupAt != nil {
		return *appt.NextFollowupAt, true
	}
	if appt.CompletedAt == nil {
		return time.Time{}, false
	}
	return appt.CompletedAt.Add(s.StartAfter), true
}

type Decision struct {
	Send  bool
	Count int
	Next  *time.Time
	Done  bool
}

// Decide determines what to do with a due appointment. A customer who has
// booked again gets no further messages.
func (s Settings) Decide(appt model.Appointment, rebooked bool, now time.Time) Decision {
	if rebooked {
		return Decision{Count: appt.FollowupCount, Done: true}
	}
	count := appt.FollowupCount + 1
	if !s.UntilRebooked && count >= s.MaxCount {
		return Decision{Send: true, Count: count, Done: true}
	}
	next := now.Add(s.RepeatEvery)
	return Decision{Send: true, Count: count, Next: &next}
}

type Vars struct {
	CustomerName string
	ServiceName  string
	BranchName   string
	BookingLink  string
}

// Render substitutes {customer_name}, {service_name}, {branch_name} and
// {booking_link}. Unknown placeholders are left as written.
func Render(tmpl string, v Vars) string {
	return strings.NewReplacer(
		"{customer_name}", v.CustomerName,
		"{service_name}", v.ServiceName,
		"{branch_name}", v.BranchName,
		"{booking_link}", v.BookingLink,
	).Replace(tmpl)
}

func (s Settings) Message(appt model.Appointment, v Vars) notify.Message {
	if v.BookingLink == "" {
		v.BookingLink = s.BookingLink
	}
	return notify.Message{
		Channel:  s.Channel,
		Email:    appt.CustomerEmail,
		Phone:    appt.CustomerPhone,
		Subject:  Render(s.EmailSubject, v),
		SMSBody:  Render(s.SMSTemplate, v),
		MailBody: Render(s.EmailTemplate, v),
	}
}
