package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0007, Down0007)
}

func Up0007(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE certificate_blobs (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    result_id UUID NOT NULL REFERENCES results (id),
    artifact_type TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    tier TEXT NOT NULL DEFAULT 'cool',
    size BIGINT NOT NULL,
    sha256 TEXT NOT NULL,
    content_type TEXT NOT NULL,
    verified BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);
`)
	if err != nil {
		return err
	}

	return nil
}

func Down0007(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE certificate_blobs;`)
	if err != nil {
		return err
	}

	return nil
}
