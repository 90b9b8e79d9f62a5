package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/followup"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

// FollowupRepository is the Postgres followup.Store.
type FollowupRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewFollowupRepository(pool *db.Pool, outboxRepo *outbox.Repository) *FollowupRepository {
	return &FollowupRepository{pool: pool, outbox: outboxRepo}
}

var _ followup.Store = (*FollowupRepository)(nil)

// DueIDs lists up to limit completed appointments whose next follow-up is at
// or before now. The first follow-up falls due startAfter past completion.
func (r *FollowupRepository) DueIDs(ctx context.Context, now time.Time, startAfter time.Duration, maxCount, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text
		FROM appointments
		WHERE status = 'completed'
			AND completed_at IS NOT NULL
			AND NOT followup_done
			AND followup_count < $3
			AND COALESCE(next_followup_at, completed_at + make_interval(secs => $2)) <= $1
		ORDER BY completed_at
		LIMIT $4
	`, now, startAfter.Seconds(), maxCount, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *FollowupRepository) WithCandidate(ctx context.Context, appointmentID string, fn func(ctx context.Context, tx followup.Tx, c followup.Candidate) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var c followup.Candidate
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
				AND status = 'completed'
				AND NOT followup_done
			FOR UPDATE SKIP LOCKED
		`, appointmentID))
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Appointment = appt
		err = tx.QueryRow(ctx, `
			SELECT s.name, st.branch_name
			FROM services s, staff st
			WHERE s.id = $1 AND st.id = $2
		`, appt.ServiceID, appt.StaffID).Scan(&c.ServiceName, &c.BranchName)
		if err != nil && !IsNotFound(err) {
			return err
		}
		return fn(ctx, &followupTx{tx: tx, outbox: r.outbox}, c)
	})
}

type followupTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *followupTx) HasNewerBooking(ctx context.Context, appt model.Appointment, since time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE id <> $1
				AND status <> 'cancelled'
				AND created_at > $4
				AND ((customer_email <> '' AND customer_email = $2)
					OR (customer_phone <> '' AND customer_phone = $3))
		)
	`, appt.ID, appt.CustomerEmail, appt.CustomerPhone, since).Scan(&exists)
	return exists, err
}

// MarkFollowup records the sent count and the next due time; done stops
// further follow-ups for the appointment.
func (t *followupTx) MarkFollowup(ctx context.Context, appointmentID string, count int, next *time.Time, done bool) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET followup_count = $2,
			next_followup_at = $3,
			followup_done = $4
		WHERE id = $1
	`, appointmentID, count, next, done)
	return err
}

func (t *followupTx) RecordEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Append(ctx, t.tx, evt)
}
