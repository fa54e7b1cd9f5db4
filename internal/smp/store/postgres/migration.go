package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smpserver/internal/smp/models"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// MigrationStore persists participant migrations. The partial unique index
// on (participant_id, direction) WHERE state = 'IN_PROGRESS' enforces the
// one-active-migration rule even under concurrent creates.
type MigrationStore struct {
	db *sql.DB
}

func NewMigrationStore(db *sql.DB) *MigrationStore {
	return &MigrationStore{db: db}
}

func (s *MigrationStore) Create(ctx context.Context, m *models.Migration) error {
	query := `
		INSERT INTO smp_pmigration (id, direction, participant_id, state, migration_key, initiated_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		m.ID, string(m.Direction), m.Participant.String(), string(m.State),
		m.MigrationKey, m.InitiatedAt, m.UpdatedAt)
	if err != nil {
		if translated := translateConstraint(err); errors.Is(translated, sentinel.ErrConflict) {
			return fmt.Errorf("active %s migration for %s: %w", m.Direction, m.Participant, sentinel.ErrConflict)
		}
		return fmt.Errorf("create migration: %w", err)
	}
	return nil
}

func (s *MigrationStore) Update(ctx context.Context, m *models.Migration) error {
	query := `
		UPDATE smp_pmigration
		SET state = $2, migration_key = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		m.ID, string(m.State), m.MigrationKey, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update migration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update migration: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("migration %s: %w", m.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *MigrationStore) Find(ctx context.Context, id string) (*models.Migration, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, direction, participant_id, state, migration_key, initiated_at, updated_at
		FROM smp_pmigration WHERE id = $1
	`, id)
	m, err := scanMigration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("migration %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find migration: %w", err)
	}
	return m, nil
}

func (s *MigrationStore) FindActive(ctx context.Context, direction models.MigrationDirection, participant identifier.ParticipantIdentifier) (*models.Migration, error) {
	row := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, direction, participant_id, state, migration_key, initiated_at, updated_at
		FROM smp_pmigration
		WHERE participant_id = $1 AND direction = $2 AND state = 'IN_PROGRESS'
	`, participant.String(), string(direction))
	m, err := scanMigration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active %s migration for %s: %w", direction, participant, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active migration: %w", err)
	}
	return m, nil
}

func (s *MigrationStore) List(ctx context.Context, direction models.MigrationDirection) ([]models.Migration, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx, `
		SELECT id, direction, participant_id, state, migration_key, initiated_at, updated_at
		FROM smp_pmigration
		WHERE direction = $1
		ORDER BY initiated_at
	`, string(direction))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	var out []models.Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("list migrations: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *MigrationStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_pmigration WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete migration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete migration: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMigration(row rowScanner) (*models.Migration, error) {
	var m models.Migration
	var direction, participant, state string
	if err := row.Scan(&m.ID, &direction, &participant, &state,
		&m.MigrationKey, &m.InitiatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Direction = models.MigrationDirection(direction)
	m.State = models.MigrationState(state)
	p, err := (identifier.Factory{AllowUnverified: true}).ParseParticipant(participant)
	if err != nil {
		return nil, fmt.Errorf("corrupt participant id %q: %w", participant, err)
	}
	m.Participant = p
	return &m, nil
}
