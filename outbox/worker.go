package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"rentflow/metrics"
)

// Worker drains pending outbox messages. Delivery here means handing
// the message to the configured sink; rows are claimed with SKIP LOCKED
// so multiple workers never double-deliver.
type Worker struct {
	pool     *pgxpool.Pool
	log      *zap.Logger
	interval time.Duration
	batch    int
	sink     func(topic string, payload []byte)
}

// NewWorker builds a delivery worker. A nil sink logs each message,
// which is the default boundary for external consumers.
func NewWorker(pool *pgxpool.Pool, log *zap.Logger, interval time.Duration, batch int) *Worker {
	w := &Worker{
		pool:     pool,
		log:      log,
		interval: interval,
		batch:    batch,
	}
	w.sink = func(topic string, payload []byte) {
		log.Info("outbox delivery", zap.String("topic", topic), zap.ByteString("payload", payload))
	}
	return w
}

// WithSink overrides the delivery sink.
func (w *Worker) WithSink(sink func(topic string, payload []byte)) *Worker {
	w.sink = sink
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

type pendingMessage struct {
	id      string
	topic   string
	payload []byte
}

func (w *Worker) drainOnce(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
SELECT id, topic, payload
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
FOR UPDATE SKIP LOCKED
LIMIT $1
`, w.batch)
	if err != nil {
		return err
	}

	msgs := make([]pendingMessage, 0, w.batch)
	for rows.Next() {
		var m pendingMessage
		if err := rows.Scan(&m.id, &m.topic, &m.payload); err != nil {
			rows.Close()
			return err
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range msgs {
		w.sink(m.topic, m.payload)
		if _, err := tx.Exec(ctx, `
UPDATE outbox
SET status = 'delivered', attempts = attempts + 1, delivered_at = get_tx_timestamp()
WHERE id = $1
`, m.id); err != nil {
			return err
		}
		metrics.OutboxDeliveredTotal.WithLabelValues(m.topic).Inc()
	}

	return tx.Commit(ctx)
}
