package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PublishObserver is told how many events each batch delivered and how many
// remain queued.
type PublishObserver interface {
	OutboxPublished(n int, err error)
	OutboxBacklog(n int)
}

type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
	retention time.Duration
	observer  PublishObserver
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// Retention is how long delivered rows are kept. Zero keeps them forever.
	Retention time.Duration
	Observer  PublishObserver
}

const pruneEvery = time.Hour

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   brokers,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		retention: cfg.Retention,
		observer:  cfg.Observer,
	}
}

func (p *Publisher) Brokers() []string {
	return p.brokers
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	var lastPrune time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if p.observer != nil {
				p.observer.OutboxPublished(n, err)
			}
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
			p.reportBacklog(ctx)
			if p.retention > 0 && now.Sub(lastPrune) >= pruneEvery {
				lastPrune = now
				p.prune(ctx, now)
			}
		}
	}
}

func (p *Publisher) reportBacklog(ctx context.Context) {
	if p.observer == nil {
		return
	}
	n, err := p.repo.Backlog(ctx, p.pool)
	if err != nil {
		p.logger.Warn("outbox backlog query failed", "err", err)
		return
	}
	p.observer.OutboxBacklog(n)
}

func (p *Publisher) prune(ctx context.Context, now time.Time) {
	n, err := p.repo.Prune(ctx, p.pool, now.Add(-p.retention))
	if err != nil {
		p.logger.Warn("outbox prune failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox pruned", "rows", n, "retention", p.retention.String())
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	published := 0
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.Claim(ctx, tx, p.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, ToMessage(ctx, r))
			ids = append(ids, r.ID)
		}
		if err := writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := p.repo.Acknowledge(ctx, tx, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// ToMessage maps an outbox row to a Kafka message keyed by aggregate id, so
// all events of one appointment land on the same partition in order.
func ToMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := r.Trace.Into(ctx)
	msg := kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.EventHeaders(r.EventID, r.EventType, r.CreatedAt),
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
