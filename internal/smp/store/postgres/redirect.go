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

// RedirectStore persists redirects in PostgreSQL.
type RedirectStore struct {
	db *sql.DB
}

func NewRedirectStore(db *sql.DB) *RedirectStore {
	return &RedirectStore{db: db}
}

func (s *RedirectStore) Upsert(ctx context.Context, r *models.Redirect) error {
	query := `
		INSERT INTO smp_redirect (participant_id, document_scheme, document_value,
			target_href, subject_unique_id, extension)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (participant_id, document_scheme, document_value) DO UPDATE SET
			target_href = EXCLUDED.target_href,
			subject_unique_id = EXCLUDED.subject_unique_id,
			extension = EXCLUDED.extension
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		r.Participant.String(), r.DocumentType.Scheme, r.DocumentType.Value,
		r.TargetURL, r.SubjectUniqueID, r.Extension)
	if err != nil {
		return fmt.Errorf("upsert redirect: %w", err)
	}
	return nil
}

func (s *RedirectStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx, `
		DELETE FROM smp_redirect
		WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
	`, participant.String(), docType.Scheme, docType.Value)
	if err != nil {
		return false, fmt.Errorf("delete redirect: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete redirect: %w", err)
	}
	return n > 0, nil
}

func (s *RedirectStore) DeleteOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_redirect WHERE participant_id = $1`, participant.String())
	if err != nil {
		return 0, fmt.Errorf("delete redirects of participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete redirects of participant: %w", err)
	}
	return int(n), nil
}

func (s *RedirectStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.Redirect, error) {
	r := models.Redirect{Participant: participant, DocumentType: docType}
	err := execer(ctx, s.db).QueryRowContext(ctx, `
		SELECT target_href, subject_unique_id, extension
		FROM smp_redirect
		WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
	`, participant.String(), docType.Scheme, docType.Value).
		Scan(&r.TargetURL, &r.SubjectUniqueID, &r.Extension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("redirect %s / %s: %w", participant, docType, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find redirect: %w", err)
	}
	return &r, nil
}

func (s *RedirectStore) ListOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.Redirect, error) {
	rows, err := execer(ctx, s.db).QueryContext(ctx, `
		SELECT document_scheme, document_value, target_href, subject_unique_id, extension
		FROM smp_redirect
		WHERE participant_id = $1
		ORDER BY document_scheme, document_value
	`, participant.String())
	if err != nil {
		return nil, fmt.Errorf("list redirects: %w", err)
	}
	defer rows.Close()

	var out []models.Redirect
	for rows.Next() {
		r := models.Redirect{Participant: participant}
		if err := rows.Scan(&r.DocumentType.Scheme, &r.DocumentType.Value,
			&r.TargetURL, &r.SubjectUniqueID, &r.Extension); err != nil {
			return nil, fmt.Errorf("list redirects: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RedirectStore) Count(ctx context.Context) (int, error) {
	var n int
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM smp_redirect`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count redirects: %w", err)
	}
	return n, nil
}
