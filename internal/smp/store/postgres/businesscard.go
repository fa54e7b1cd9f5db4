package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"smpserver/internal/smp/models"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// BusinessCardStore persists business cards in PostgreSQL. Entities are a
// document-shaped JSONB column: cards are read and written whole, never
// queried by entity fields.
type BusinessCardStore struct {
	db *sql.DB
}

func NewBusinessCardStore(db *sql.DB) *BusinessCardStore {
	return &BusinessCardStore{db: db}
}

func (s *BusinessCardStore) Upsert(ctx context.Context, bc *models.BusinessCard) error {
	entities, err := json.Marshal(bc.Entities)
	if err != nil {
		return fmt.Errorf("encode business card: %w", err)
	}
	query := `
		INSERT INTO smp_business_card (participant_id, entities)
		VALUES ($1, $2)
		ON CONFLICT (participant_id) DO UPDATE SET entities = EXCLUDED.entities
	`
	if _, err := execer(ctx, s.db).ExecContext(ctx, query, bc.Participant.String(), entities); err != nil {
		return fmt.Errorf("upsert business card: %w", err)
	}
	return nil
}

func (s *BusinessCardStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier) (bool, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_business_card WHERE participant_id = $1`, participant.String())
	if err != nil {
		return false, fmt.Errorf("delete business card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete business card: %w", err)
	}
	return n > 0, nil
}

func (s *BusinessCardStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.BusinessCard, error) {
	var entities []byte
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT entities FROM smp_business_card WHERE participant_id = $1`,
		participant.String()).Scan(&entities)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("business card %s: %w", participant, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find business card: %w", err)
	}
	bc := models.BusinessCard{Participant: participant}
	if err := json.Unmarshal(entities, &bc.Entities); err != nil {
		return nil, fmt.Errorf("decode business card: %w", err)
	}
	return &bc, nil
}

func (s *BusinessCardStore) ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT participant_id FROM smp_business_card ORDER BY participant_id`)
	if err != nil {
		return nil, fmt.Errorf("list business cards: %w", err)
	}
	defer rows.Close()

	f := identifier.Factory{AllowUnverified: true}
	var out []identifier.ParticipantIdentifier
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list business cards: %w", err)
		}
		p, err := f.ParseParticipant(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt participant id %q: %w", raw, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *BusinessCardStore) Count(ctx context.Context) (int, error) {
	var n int
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM smp_business_card`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count business cards: %w", err)
	}
	return n, nil
}
