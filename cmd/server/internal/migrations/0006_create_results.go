package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0006, Down0006)
}

func Up0006(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE results (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    candidate_id UUID NOT NULL REFERENCES candidates (id),
    exam_id UUID NOT NULL REFERENCES exams (id),
    standard_id TEXT,
    answers JSONB,
    score BIGINT,
    status TEXT NOT NULL DEFAULT 'in_progress',
    verdict TEXT,
    pdf_status TEXT NOT NULL DEFAULT 'pending',
    certificate_code TEXT NOT NULL UNIQUE,
    report_url TEXT,
    certificate_url TEXT,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,
    deadline TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);

CREATE INDEX results_sweep_idx ON results (status, deadline);
`)
	if err != nil {
		return err
	}

	return nil
}

func Down0006(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE results;`)
	if err != nil {
		return err
	}

	return nil
}
