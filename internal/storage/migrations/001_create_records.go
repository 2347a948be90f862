package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(1, upCreateRecords, downCreateRecords)
}

func upCreateRecords(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL DEFAULT '',
			secondary_text TEXT NOT NULL DEFAULT '',
			source_app TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at)`)
	return err
}

func downCreateRecords(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS records`)
	return err
}
