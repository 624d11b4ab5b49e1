package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE vouchers (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    candidate_id UUID NOT NULL REFERENCES candidates (id),
    exam_id UUID NOT NULL REFERENCES exams (id),
    status TEXT NOT NULL DEFAULT 'active',
    opportunities INTEGER NOT NULL,
    opportunities_used INTEGER NOT NULL DEFAULT 0,
    expiration_date TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    CONSTRAINT opportunities_not_overdrawn CHECK (opportunities_used <= opportunities)
);
`)
	if err != nil {
		return err
	}

	return nil
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE vouchers;`)
	if err != nil {
		return err
	}

	return nil
}
