package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(2, upAddSemanticColumns, downAddSemanticColumns)
}

func upAddSemanticColumns(ctx context.Context, tx *sql.Tx) error {
	// SQLite only accepts constant defaults in ALTER TABLE ADD COLUMN.
	queries := []string{
		`ALTER TABLE records ADD COLUMN embedding BLOB`,
		`ALTER TABLE records ADD COLUMN embedding_model TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE records ADD COLUMN related_ids TEXT NOT NULL DEFAULT '[]'`,
		`ALTER TABLE records ADD COLUMN context_score REAL NOT NULL DEFAULT 0`,
	}
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func downAddSemanticColumns(ctx context.Context, tx *sql.Tx) error {
	for _, col := range []string{"context_score", "related_ids", "embedding_model", "embedding"} {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE records DROP COLUMN `+col); err != nil {
			return err
		}
	}
	return nil
}
