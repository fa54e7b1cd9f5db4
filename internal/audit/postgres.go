package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "smpserver/pkg/platform/tx"
)

// PostgresStore implements Store using the transactional outbox pattern.
// Events are written to smp_audit_outbox and published downstream by the
// Kafka sink; joining the caller's transaction means an event is recorded
// exactly when the mutation it describes commits.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type outboxPayload struct {
	ID          string `json:"ID"`
	Timestamp   string `json:"Timestamp"`
	Actor       string `json:"Actor,omitempty"`
	Action      string `json:"Action"`
	Participant string `json:"Participant,omitempty"`
	Detail      string `json:"Detail,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	payload := outboxPayload{
		ID:          event.ID.String(),
		Timestamp:   event.Timestamp.Format(time.RFC3339Nano),
		Actor:       event.Actor,
		Action:      event.Action,
		Participant: event.Participant,
		Detail:      event.Detail,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO smp_audit_outbox (id, payload, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, event.ID, payloadBytes, time.Now()); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// MarkPublished stamps outbox entries that have been handed to the
// downstream sink.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE smp_audit_outbox SET published_at = now() WHERE id = ANY($1::uuid[])`
	if _, err := s.execer(ctx).ExecContext(ctx, query, pq.Array(idStrings(ids))); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
