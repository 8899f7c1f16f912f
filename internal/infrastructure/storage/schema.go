package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements is portable between Postgres and SQLite. Migrations proper
// live with the application schema; this only bootstraps empty databases.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS regulations (
		id               TEXT NOT NULL,
		organization_id  TEXT NOT NULL,
		name             TEXT NOT NULL,
		full_title       TEXT NOT NULL,
		jurisdiction     TEXT NOT NULL,
		effective_date   TIMESTAMP NULL,
		source_url       TEXT NOT NULL,
		ingest_job_id    TEXT NOT NULL,
		ingest_timestamp TIMESTAMP NOT NULL,
		PRIMARY KEY (organization_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id               TEXT NOT NULL,
		organization_id  TEXT NOT NULL,
		regulation_id    TEXT NOT NULL,
		article_number   TEXT NOT NULL,
		section_title    TEXT NOT NULL,
		raw_text         TEXT NOT NULL,
		ai_summary       TEXT NOT NULL,
		risk_level       TEXT NOT NULL,
		system_types     TEXT NOT NULL,
		checksum         TEXT NOT NULL,
		ingest_job_id    TEXT NOT NULL,
		ingest_timestamp TIMESTAMP NOT NULL,
		PRIMARY KEY (organization_id, id),
		FOREIGN KEY (organization_id, regulation_id) REFERENCES regulations (organization_id, id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS obligations (
		id              TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		article_id      TEXT NOT NULL,
		title           TEXT NOT NULL,
		summary         TEXT NOT NULL,
		status          TEXT NOT NULL,
		PRIMARY KEY (organization_id, id),
		FOREIGN KEY (organization_id, article_id) REFERENCES articles (organization_id, id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_jobs (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		source          TEXT NOT NULL,
		source_url      TEXT NOT NULL,
		status          TEXT NOT NULL,
		started_at      TIMESTAMP NOT NULL,
		finished_at     TIMESTAMP NULL,
		log             TEXT NOT NULL,
		error_message   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_jobs_org_started ON ingest_jobs (organization_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS ingest_jobs_status ON ingest_jobs (status)`,
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
