package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0010, Down0010)
}

func Up0010(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
ALTER TABLE results ADD COLUMN voucher_id UUID REFERENCES vouchers (id);

CREATE INDEX results_voucher_open_idx ON results (voucher_id) WHERE status = 'in_progress';
`)
	if err != nil {
		return err
	}

	return nil
}

func Down0010(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
DROP INDEX results_voucher_open_idx;
ALTER TABLE results DROP COLUMN voucher_id;
`)
	if err != nil {
		return err
	}

	return nil
}
