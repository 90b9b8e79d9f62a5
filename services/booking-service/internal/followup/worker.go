package followup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

const EventFollowupSent = "booking.appointment.followup_sent.v1"

type Sender interface {
	Notify(ctx context.Context, msg notify.Message) (notify.Delivery, error)
}

// Observer receives one outcome per processed appointment: "sent",
// "failed", "stopped" or "undeliverable".
type Observer interface {
	FollowupProcessed(outcome string)
}

var errNotDelivered = errors.New("follow-up not delivered")

type Worker struct {
	store     Store
	sender    Sender
	logger    *slog.Logger
	settings  Settings
	interval  time.Duration
	batchSize int
	backoff   time.Duration
	observer  Observer
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
	Observer  Observer
	Clock     func() time.Time
}

func NewWorker(store Store, sender Sender, settings Settings, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:     store,
		sender:    sender,
		logger:    logger,
		settings:  settings,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
		observer:  cfg.Observer,
		now:       cfg.Clock,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if !w.settings.Enabled {
		w.logger.Info("follow-up worker disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("follow-up batch failed", "err", err)
			}
		}
	}
}

// processBatch handles every due appointment, continuing past failures.
func (w *Worker) processBatch(ctx context.Context) error {
	now := w.now().UTC()
	ids, err := w.store.DueIDs(ctx, now, w.settings.StartAfter, w.settings.QueryLimit(), w.batchSize)
	if err != nil {
		return fmt.Errorf("list due follow-ups: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if err := w.processOne(ctx, id, now); err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) processOne(ctx context.Context, id string, now time.Time) error {
	err := w.store.WithCandidate(ctx, id, func(ctx context.Context, tx Tx, c Candidate) error {
		return w.process(ctx, tx, c, now)
	})
	if !errors.Is(err, errNotDelivered) {
		return err
	}

	w.observe("failed")
	w.logger.Warn("follow-up send failed", "appointment_id", id, "err", err)
	retry := now.Add(w.backoff)
	return w.store.WithCandidate(ctx, id, func(ctx context.Context, tx Tx, c Candidate) error {
		return tx.MarkFollowup(ctx, c.Appointment.ID, c.Appointment.FollowupCount, &retry, false)
	})
}

// process records the follow-up before sending it, so the only way a
// delivered message is repeated is a failed commit afterwards.
func (w *Worker) process(ctx context.Context, tx Tx, c Candidate, now time.Time) error {
	appt := c.Appointment
	if due, ok := w.settings.DueAt(appt); !ok || due.After(now) {
		return nil
	}
	rebooked := false
	if appt.CompletedAt != nil {
		var err error
		rebooked, err = tx.HasNewerBooking(ctx, appt, *appt.CompletedAt)
		if err != nil {
			return err
		}
	}

	d := w.settings.Decide(appt, rebooked, now)
	if !d.Send {
		w.observe("stopped")
		return tx.MarkFollowup(ctx, appt.ID, d.Count, nil, true)
	}

	msg := w.settings.Message(appt, Vars{
		CustomerName: appt.CustomerName,
		ServiceName:  c.ServiceName,
		BranchName:   c.BranchName,
	})
	if !msg.Deliverable() {
		w.observe("undeliverable")
		return tx.MarkFollowup(ctx, appt.ID, appt.FollowupCount, nil, true)
	}

	evt, err := outbox.NewEvent("appointment", appt.ID, EventFollowupSent, map[string]any{
		"appointment_id": appt.ID,
		"channel":        string(msg.Channel),
		"followup_count": d.Count,
		"sent_at":        now.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := tx.RecordEvent(ctx, evt); err != nil {
		return err
	}
	if err := tx.MarkFollowup(ctx, appt.ID, d.Count, d.Next, d.Done); err != nil {
		return err
	}

	delivery, err := w.sender.Notify(ctx, msg)
	if !delivery.Any() {
		if err == nil {
			err = notify.ErrNoRecipient
		}
		return fmt.Errorf("%w: %w", errNotDelivered, err)
	}
	if err != nil {
		w.logger.Warn("follow-up partially delivered", "appointment_id", appt.ID,
			"sms", delivery.SMS, "email", delivery.Email, "err", err)
	}
	w.observe("sent")
	return nil
}

func (w *Worker) observe(outcome string) {
	if w.observer != nil {
		w.observer.FollowupProcessed(outcome)
	}
}
