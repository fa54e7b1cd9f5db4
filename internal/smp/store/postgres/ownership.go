package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"smpserver/pkg/identifier"
)

// OwnershipStore persists (owner, participant) pairs in the smp_ownership
// table, which carries multi-owner support in the relational backend.
type OwnershipStore struct {
	db *sql.DB
}

func NewOwnershipStore(db *sql.DB) *OwnershipStore {
	return &OwnershipStore{db: db}
}

func (s *OwnershipStore) Assign(ctx context.Context, owner string, participant identifier.ParticipantIdentifier) error {
	query := `
		INSERT INTO smp_ownership (owner_id, participant_id)
		VALUES ($1, $2)
		ON CONFLICT (owner_id, participant_id) DO NOTHING
	`
	if _, err := execer(ctx, s.db).ExecContext(ctx, query, owner, participant.String()); err != nil {
		return fmt.Errorf("assign ownership: %w", err)
	}
	return nil
}

func (s *OwnershipStore) Remove(ctx context.Context, owner string, participant identifier.ParticipantIdentifier) (bool, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_ownership WHERE owner_id = $1 AND participant_id = $2`,
		owner, participant.String())
	if err != nil {
		return false, fmt.Errorf("remove ownership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove ownership: %w", err)
	}
	return n > 0, nil
}

func (s *OwnershipStore) RemoveOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_ownership WHERE participant_id = $1`, participant.String())
	if err != nil {
		return 0, fmt.Errorf("remove ownership of participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove ownership of participant: %w", err)
	}
	return int(n), nil
}

func (s *OwnershipStore) IsOwner(ctx context.Context, owner string, participant identifier.ParticipantIdentifier) (bool, error) {
	var exists bool
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM smp_ownership WHERE owner_id = $1 AND participant_id = $2
		)
	`, owner, participant.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ownership: %w", err)
	}
	return exists, nil
}

func (s *OwnershipStore) ListOwned(ctx context.Context, owner string) ([]identifier.ParticipantIdentifier, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT participant_id FROM smp_ownership WHERE owner_id = $1 ORDER BY participant_id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list owned participants: %w", err)
	}
	defer rows.Close()

	f := identifier.Factory{AllowUnverified: true}
	var out []identifier.ParticipantIdentifier
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list owned participants: %w", err)
		}
		p, err := f.ParseParticipant(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt participant id %q: %w", raw, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
