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

// ServiceGroupStore persists service groups in PostgreSQL.
type ServiceGroupStore struct {
	db *sql.DB
}

func NewServiceGroupStore(db *sql.DB) *ServiceGroupStore {
	return &ServiceGroupStore{db: db}
}

func (s *ServiceGroupStore) Create(ctx context.Context, sg *models.ServiceGroup) error {
	query := `
		INSERT INTO smp_service_group (participant_id, owner_id, extension, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		sg.Participant.String(), sg.OwnerID, sg.Extension, sg.CreatedAt, sg.UpdatedAt)
	if err != nil {
		if translated := translateConstraint(err); errors.Is(translated, sentinel.ErrConflict) {
			return fmt.Errorf("service group %s: %w", sg.Participant, sentinel.ErrConflict)
		}
		return fmt.Errorf("create service group: %w", err)
	}
	return nil
}

func (s *ServiceGroupStore) Update(ctx context.Context, sg *models.ServiceGroup) error {
	query := `
		UPDATE smp_service_group
		SET owner_id = $2, extension = $3, updated_at = $4
		WHERE participant_id = $1
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		sg.Participant.String(), sg.OwnerID, sg.Extension, sg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update service group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update service group: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("service group %s: %w", sg.Participant, sentinel.ErrNotFound)
	}
	return nil
}

func (s *ServiceGroupStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier) (bool, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_service_group WHERE participant_id = $1`, participant.String())
	if err != nil {
		return false, fmt.Errorf("delete service group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete service group: %w", err)
	}
	return n > 0, nil
}

func (s *ServiceGroupStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.ServiceGroup, error) {
	query := `
		SELECT owner_id, extension, created_at, updated_at
		FROM smp_service_group
		WHERE participant_id = $1
	`
	sg := models.ServiceGroup{Participant: participant}
	err := execer(ctx, s.db).QueryRowContext(ctx, query, participant.String()).
		Scan(&sg.OwnerID, &sg.Extension, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service group %s: %w", participant, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find service group: %w", err)
	}
	return &sg, nil
}

func (s *ServiceGroupStore) ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx,
		`SELECT participant_id FROM smp_service_group ORDER BY participant_id`)
	if err != nil {
		return nil, fmt.Errorf("list service groups: %w", err)
	}
	defer rows.Close()

	f := identifier.Factory{AllowUnverified: true}
	var out []identifier.ParticipantIdentifier
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list service groups: %w", err)
		}
		p, err := f.ParseParticipant(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt participant id %q: %w", raw, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ServiceGroupStore) Count(ctx context.Context) (int, error) {
	var n int
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM smp_service_group`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count service groups: %w", err)
	}
	return n, nil
}
