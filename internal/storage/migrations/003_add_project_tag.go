package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(3, upAddProjectTag, downAddProjectTag)
}

func upAddProjectTag(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`ALTER TABLE records ADD COLUMN project_tag TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_records_project_tag ON records(project_tag)`,
		`CREATE INDEX IF NOT EXISTS idx_records_source_app ON records(source_app)`,
	}
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func downAddProjectTag(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`DROP INDEX IF EXISTS idx_records_source_app`,
		`DROP INDEX IF EXISTS idx_records_project_tag`,
		`ALTER TABLE records DROP COLUMN project_tag`,
	}
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
