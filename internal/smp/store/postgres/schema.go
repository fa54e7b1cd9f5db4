package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// MigrateSchema creates the registry tables if they do not exist. Schema
// evolution beyond this bootstrap (legacy FK and user-table drops) is a
// one-time operational step outside the steady-state contract.
func MigrateSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS smp_service_group (
			participant_id TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			extension      TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS smp_service_information (
			participant_id  TEXT NOT NULL REFERENCES smp_service_group(participant_id) ON DELETE CASCADE,
			document_scheme TEXT NOT NULL,
			document_value  TEXT NOT NULL,
			extension       TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (participant_id, document_scheme, document_value)
		)`,
		`CREATE TABLE IF NOT EXISTS smp_process (
			participant_id  TEXT NOT NULL,
			document_scheme TEXT NOT NULL,
			document_value  TEXT NOT NULL,
			process_scheme  TEXT NOT NULL,
			process_value   TEXT NOT NULL,
			extension       TEXT NOT NULL DEFAULT '',
			position        INT NOT NULL,
			PRIMARY KEY (participant_id, document_scheme, document_value, process_scheme, process_value),
			FOREIGN KEY (participant_id, document_scheme, document_value)
				REFERENCES smp_service_information(participant_id, document_scheme, document_value)
				ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS smp_endpoint (
			participant_id    TEXT NOT NULL,
			document_scheme   TEXT NOT NULL,
			document_value    TEXT NOT NULL,
			process_scheme    TEXT NOT NULL,
			process_value     TEXT NOT NULL,
			transport_profile TEXT NOT NULL,
			address           TEXT NOT NULL,
			require_bls       BOOLEAN NOT NULL DEFAULT FALSE,
			certificate       TEXT NOT NULL DEFAULT '',
			activation_date   TIMESTAMPTZ,
			expiration_date   TIMESTAMPTZ,
			tech_contact_url  TEXT NOT NULL DEFAULT '',
			description       TEXT NOT NULL DEFAULT '',
			extension         TEXT NOT NULL DEFAULT '',
			position          INT NOT NULL,
			PRIMARY KEY (participant_id, document_scheme, document_value, process_scheme, process_value, transport_profile),
			FOREIGN KEY (participant_id, document_scheme, document_value, process_scheme, process_value)
				REFERENCES smp_process(participant_id, document_scheme, document_value, process_scheme, process_value)
				ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS smp_redirect (
			participant_id    TEXT NOT NULL REFERENCES smp_service_group(participant_id) ON DELETE CASCADE,
			document_scheme   TEXT NOT NULL,
			document_value    TEXT NOT NULL,
			target_href       TEXT NOT NULL,
			subject_unique_id TEXT NOT NULL DEFAULT '',
			extension         TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (participant_id, document_scheme, document_value)
		)`,
		`CREATE TABLE IF NOT EXISTS smp_business_card (
			participant_id TEXT PRIMARY KEY REFERENCES smp_service_group(participant_id) ON DELETE CASCADE,
			entities       JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS smp_pmigration (
			id             UUID PRIMARY KEY,
			direction      TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			state          TEXT NOT NULL,
			migration_key  TEXT NOT NULL,
			initiated_at   TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS smp_pmigration_active_uniq
			ON smp_pmigration (participant_id, direction)
			WHERE state = 'IN_PROGRESS'`,
		`CREATE TABLE IF NOT EXISTS smp_ownership (
			owner_id       TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			PRIMARY KEY (owner_id, participant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS smp_audit_outbox (
			id           UUID PRIMARY KEY,
			payload      JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
