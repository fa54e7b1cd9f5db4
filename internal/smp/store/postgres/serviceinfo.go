package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"smpserver/internal/smp/models"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// ServiceInformationStore persists document-type registrations across the
// smp_service_information, smp_process, and smp_endpoint tables. Upsert
// replaces the whole process/endpoint set for its key; endpoint order is
// kept in a position column.
type ServiceInformationStore struct {
	db *sql.DB
}

func NewServiceInformationStore(db *sql.DB) *ServiceInformationStore {
	return &ServiceInformationStore{db: db}
}

func (s *ServiceInformationStore) Upsert(ctx context.Context, si *models.ServiceInformation) error {
	ex := execer(ctx, s.db)
	pk := si.Participant.String()
	dk := si.DocumentType

	// Full replace: drop the old row (children cascade), then re-insert.
	_, err := ex.ExecContext(ctx, `
		DELETE FROM smp_service_information
		WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
	`, pk, dk.Scheme, dk.Value)
	if err != nil {
		return fmt.Errorf("replace service information: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO smp_service_information (participant_id, document_scheme, document_value, extension)
		VALUES ($1, $2, $3, $4)
	`, pk, dk.Scheme, dk.Value, si.Extension)
	if err != nil {
		return fmt.Errorf("insert service information: %w", err)
	}

	for pi, proc := range si.Processes {
		_, err = ex.ExecContext(ctx, `
			INSERT INTO smp_process (participant_id, document_scheme, document_value,
				process_scheme, process_value, extension, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, pk, dk.Scheme, dk.Value, proc.ID.Scheme, proc.ID.Value, proc.Extension, pi)
		if err != nil {
			return fmt.Errorf("insert process: %w", translateConstraint(err))
		}
		for ei, ep := range proc.Endpoints {
			_, err = ex.ExecContext(ctx, `
				INSERT INTO smp_endpoint (participant_id, document_scheme, document_value,
					process_scheme, process_value, transport_profile, address, require_bls,
					certificate, activation_date, expiration_date, tech_contact_url,
					description, extension, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			`, pk, dk.Scheme, dk.Value, proc.ID.Scheme, proc.ID.Value,
				ep.TransportProfile, ep.Address, ep.RequireBusinessLevelSignature,
				ep.Certificate, ep.ServiceActivation, ep.ServiceExpiration,
				ep.TechnicalContactURL, ep.Description, ep.Extension, ei)
			if err != nil {
				return fmt.Errorf("insert endpoint: %w", translateConstraint(err))
			}
		}
	}
	return nil
}

func (s *ServiceInformationStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx, `
		DELETE FROM smp_service_information
		WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
	`, participant.String(), docType.Scheme, docType.Value)
	if err != nil {
		return false, fmt.Errorf("delete service information: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete service information: %w", err)
	}
	return n > 0, nil
}

func (s *ServiceInformationStore) DeleteOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	res, err := execer(ctx, s.db).ExecContext(ctx,
		`DELETE FROM smp_service_information WHERE participant_id = $1`, participant.String())
	if err != nil {
		return 0, fmt.Errorf("delete service information of participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete service information of participant: %w", err)
	}
	return int(n), nil
}

func (s *ServiceInformationStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.ServiceInformation, error) {
	ex := execer(ctx, s.db)
	si := models.ServiceInformation{Participant: participant, DocumentType: docType}
	err := ex.QueryRowContext(ctx, `
		SELECT extension FROM smp_service_information
		WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
	`, participant.String(), docType.Scheme, docType.Value).Scan(&si.Extension)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("service information %s / %s: %w", participant, docType, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find service information: %w", err)
	}
	if err := s.loadProcesses(ctx, ex, &si); err != nil {
		return nil, err
	}
	return &si, nil
}

func (s *ServiceInformationStore) ListOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.ServiceInformation, error) {
	ex := execer(ctx, s.db)
	rows, err := ex.QueryContext(ctx, `
		SELECT document_scheme, document_value, extension
		FROM smp_service_information
		WHERE participant_id = $1
		ORDER BY document_scheme, document_value
	`, participant.String())
	if err != nil {
		return nil, fmt.Errorf("list service information: %w", err)
	}
	defer rows.Close()

	var out []models.ServiceInformation
	for rows.Next() {
		si := models.ServiceInformation{Participant: participant}
		if err := rows.Scan(&si.DocumentType.Scheme, &si.DocumentType.Value, &si.Extension); err != nil {
			return nil, fmt.Errorf("list service information: %w", err)
		}
		out = append(out, si)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list service information: %w", err)
	}
	for i := range out {
		if err := s.loadProcesses(ctx, ex, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *ServiceInformationStore) Count(ctx context.Context) (int, error) {
	var n int
	err := execer(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM smp_service_information`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count service information: %w", err)
	}
	return n, nil
}

func (s *ServiceInformationStore) loadProcesses(ctx context.Context, ex dbExecutor, si *models.ServiceInformation) error {
	pk := si.Participant.String()
	dk := si.DocumentType

	rows, err := ex.QueryContext(ctx, `
		SELECT process_scheme, process_value, extension
		FROM smp_process
		WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
		ORDER BY position
	`, pk, dk.Scheme, dk.Value)
	if err != nil {
		return fmt.Errorf("load processes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var proc models.Process
		if err := rows.Scan(&proc.ID.Scheme, &proc.ID.Value, &proc.Extension); err != nil {
			return fmt.Errorf("load processes: %w", err)
		}
		si.Processes = append(si.Processes, proc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load processes: %w", err)
	}

	for i := range si.Processes {
		proc := &si.Processes[i]
		epRows, err := ex.QueryContext(ctx, `
			SELECT transport_profile, address, require_bls, certificate,
				activation_date, expiration_date, tech_contact_url, description, extension
			FROM smp_endpoint
			WHERE participant_id = $1 AND document_scheme = $2 AND document_value = $3
				AND process_scheme = $4 AND process_value = $5
			ORDER BY position
		`, pk, dk.Scheme, dk.Value, proc.ID.Scheme, proc.ID.Value)
		if err != nil {
			return fmt.Errorf("load endpoints: %w", err)
		}
		for epRows.Next() {
			var ep models.Endpoint
			var activation, expiration sql.NullTime
			if err := epRows.Scan(&ep.TransportProfile, &ep.Address,
				&ep.RequireBusinessLevelSignature, &ep.Certificate,
				&activation, &expiration, &ep.TechnicalContactURL,
				&ep.Description, &ep.Extension); err != nil {
				epRows.Close()
				return fmt.Errorf("load endpoints: %w", err)
			}
			if activation.Valid {
				t := activation.Time
				ep.ServiceActivation = &t
			}
			if expiration.Valid {
				t := expiration.Time
				ep.ServiceExpiration = &t
			}
			proc.Endpoints = append(proc.Endpoints, ep)
		}
		if err := epRows.Err(); err != nil {
			epRows.Close()
			return fmt.Errorf("load endpoints: %w", err)
		}
		epRows.Close()
	}
	return nil
}
