package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE exams (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    title TEXT NOT NULL,
    class_code TEXT NOT NULL,
    passing_score INTEGER NOT NULL,
    duration_mins INTEGER NOT NULL DEFAULT 120,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);

CREATE TABLE categories (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    exam_id UUID NOT NULL REFERENCES exams (id),
    name TEXT NOT NULL,
    weight DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);

CREATE TABLE topics (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    category_id UUID NOT NULL REFERENCES categories (id),
    name TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);

CREATE TABLE questions (
    id UUID PRIMARY KEY DEFAULT uuidv7_sub_ms(),
    topic_id UUID NOT NULL REFERENCES topics (id),
    type TEXT NOT NULL,
    scoring_mode TEXT NOT NULL DEFAULT '',
    case_sensitive BOOLEAN NOT NULL DEFAULT false,
    points DOUBLE PRECISION NOT NULL,
    answer_key JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);
`)
	if err != nil {
		return err
	}

	return nil
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
DROP TABLE questions;
DROP TABLE topics;
DROP TABLE categories;
DROP TABLE exams;
`)
	if err != nil {
		return err
	}

	return nil
}
