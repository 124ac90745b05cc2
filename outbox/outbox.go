package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Entity kinds recorded in the timeline.
const (
	EntityProperty    = "property"
	EntityRental      = "rental"
	EntityDispute     = "dispute"
	EntityMaintenance = "maintenance_request"
	EntityUser        = "user"
)

// AppendEvent writes a timeline event for an entity inside the caller's
// transaction. The authoritative state lives in the entity tables; the
// timeline is a derived audit record.
func AppendEvent(ctx context.Context, tx pgx.Tx, entityKind, entityID, eventType string, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal timeline payload: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const q = `
INSERT INTO timeline_events (entity_kind, entity_id, type, actor_id, payload)
VALUES ($1, $2, $3, $4::uuid, $5::jsonb)
`
	if _, err := tx.Exec(ctx, q, entityKind, entityID, eventType, actor, body); err != nil {
		return fmt.Errorf("outbox: insert timeline event: %w", err)
	}
	return nil
}

// Enqueue writes a notification for downstream consumers inside the
// caller's transaction.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}
