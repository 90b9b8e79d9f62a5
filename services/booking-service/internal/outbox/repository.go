package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
)

// Querier is satisfied by pgx.Tx and the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository owns the outbox_events table. Appointment changes append rows in
// their own transaction; the publisher claims, acknowledges and prunes them.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record is a stored event waiting for, or past, delivery to Kafka.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Trace         otelx.TraceCarrier
	CreatedAt     time.Time
}

const appendSQL = `
	INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))`

// Append stores evts in tx, tagged with the trace active in ctx. They become
// visible to the publisher only if tx commits.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	tc := otelx.CaptureTrace(ctx)
	if len(evts) == 1 {
		e := evts[0]
		_, err := tx.Exec(ctx, appendSQL, uuid.NewString(), e.AggregateType, e.AggregateID, e.EventType, e.Payload, tc.Parent, tc.State)
		return err
	}
	b := &pgx.Batch{}
	for _, e := range evts {
		b.Queue(appendSQL, uuid.NewString(), e.AggregateType, e.AggregateID, e.EventType, e.Payload, tc.Parent, tc.State)
	}
	return tx.SendBatch(ctx, b).Close()
}

// Claim locks up to limit undelivered rows in insertion order. Rows held by
// another publisher are skipped.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.Trace.Parent, &rec.Trace.State, &rec.CreatedAt)
		return rec, err
	})
}

func (r *Repository) Acknowledge(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

// Backlog counts rows not yet delivered.
func (r *Repository) Backlog(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE published_at IS NULL`).Scan(&n)
	return n, err
}

// Prune deletes rows delivered before cutoff. Undelivered rows are kept
// however old they are.
func (r *Repository) Prune(ctx context.Context, q Querier, cutoff time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
