package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfenderov/recall/internal/clip"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("not found")

	// ErrEmptyRecord is returned when a record has neither text nor secondary text.
	ErrEmptyRecord = errors.New("record has no text")
)

const recordColumns = `id, text, secondary_text, source_app, created_at, access_count,
	embedding, embedding_model, related_ids, context_score, project_tag`

// recordRow mirrors the records table.
type recordRow struct {
	ID             string  `db:"id"`
	Text           string  `db:"text"`
	SecondaryText  string  `db:"secondary_text"`
	SourceApp      string  `db:"source_app"`
	CreatedAt      int64   `db:"created_at"`
	AccessCount    int     `db:"access_count"`
	Embedding      []byte  `db:"embedding"`
	EmbeddingModel string  `db:"embedding_model"`
	RelatedIDs     string  `db:"related_ids"`
	ContextScore   float64 `db:"context_score"`
	ProjectTag     string  `db:"project_tag"`
}

func (r recordRow) toRecord() clip.Record {
	var related []string
	// A corrupt list reads as empty; the next indexing pass rewrites it.
	_ = json.Unmarshal([]byte(r.RelatedIDs), &related)

	return clip.Record{
		ID:            r.ID,
		Text:          r.Text,
		SecondaryText: r.SecondaryText,
		Timestamp:     time.UnixMilli(r.CreatedAt),
		SourceApp:     r.SourceApp,
		Embedding:     r.Embedding,
		RelatedIDs:    related,
		ContextScore:  r.ContextScore,
		ProjectTag:    r.ProjectTag,
		AccessCount:   r.AccessCount,
	}
}

func toRecords(rows []recordRow) []clip.Record {
	records := make([]clip.Record, len(rows))
	for i, r := range rows {
		records[i] = r.toRecord()
	}
	return records
}

// AddRecord inserts a record. A missing id is generated and a zero timestamp
// becomes now; the stored record is returned.
func (s *Store) AddRecord(ctx context.Context, rec clip.Record) (clip.Record, error) {
	if strings.TrimSpace(rec.Text) == "" && strings.TrimSpace(rec.SecondaryText) == "" {
		return clip.Record{}, ErrEmptyRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = time.UnixMilli(rec.Timestamp.UnixMilli())

	related, err := json.Marshal(nonNil(rec.RelatedIDs))
	if err != nil {
		return clip.Record{}, fmt.Errorf("failed to encode related ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)
	`,
		rec.ID, rec.Text, rec.SecondaryText, rec.SourceApp, rec.Timestamp.UnixMilli(), rec.AccessCount,
		nilIfEmpty(rec.Embedding), string(related), rec.ContextScore, rec.ProjectTag,
	)
	if err != nil {
		return clip.Record{}, fmt.Errorf("failed to insert record: %w", err)
	}

	return rec, nil
}

// GetRecord retrieves a record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (clip.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return clip.Record{}, ErrNotFound
	}
	if err != nil {
		return clip.Record{}, err
	}
	return row.toRecord(), nil
}

// GetRecords retrieves the records with the given ids, in the order given.
// Unknown ids are skipped.
func (s *Store) GetRecords(ctx context.Context, ids []string) ([]clip.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+recordColumns+` FROM records WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byID := make(map[string]clip.Record, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.toRecord()
	}
	records := make([]clip.Record, 0, len(rows))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// DeleteRecord removes a record.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	return s.expectOne(s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id))
}

// RecentRecords returns up to limit records, newest first.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]clip.Record, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+recordColumns+` FROM records
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// AllRecords returns every record, newest first.
func (s *Store) AllRecords(ctx context.Context) ([]clip.Record, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+recordColumns+` FROM records
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// RecordsWithoutEmbedding returns records that have no stored embedding,
// oldest first.
func (s *Store) RecordsWithoutEmbedding(ctx context.Context) ([]clip.Record, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+recordColumns+` FROM records
		WHERE embedding IS NULL OR length(embedding) = 0
		ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// SaveEmbedding stores an encoded embedding and the model that produced it.
func (s *Store) SaveEmbedding(ctx context.Context, id string, blob []byte, model string) error {
	return s.expectOne(s.db.ExecContext(ctx,
		`UPDATE records SET embedding = ?, embedding_model = ? WHERE id = ?`,
		nilIfEmpty(blob), model, id,
	))
}

// SaveRelatedIDs replaces a record's related-item list.
func (s *Store) SaveRelatedIDs(ctx context.Context, id string, related []string) error {
	encoded, err := json.Marshal(nonNil(related))
	if err != nil {
		return fmt.Errorf("failed to encode related ids: %w", err)
	}
	return s.expectOne(s.db.ExecContext(ctx,
		`UPDATE records SET related_ids = ? WHERE id = ?`, string(encoded), id,
	))
}

// SaveContextScore stores one record's context score.
func (s *Store) SaveContextScore(ctx context.Context, id string, score float64) error {
	return s.expectOne(s.db.ExecContext(ctx,
		`UPDATE records SET context_score = ? WHERE id = ?`, score, id,
	))
}

// SaveContextScores stores many context scores in one transaction. Ids that
// no longer exist are ignored.
func (s *Store) SaveContextScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `UPDATE records SET context_score = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, score := range scores {
		if _, err := stmt.ExecContext(ctx, score, id); err != nil {
			return fmt.Errorf("storing context score for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// SetProjectTag sets or clears (empty tag) a record's project tag.
func (s *Store) SetProjectTag(ctx context.Context, id, tag string) error {
	return s.expectOne(s.db.ExecContext(ctx,
		`UPDATE records SET project_tag = ? WHERE id = ?`, strings.TrimSpace(tag), id,
	))
}

// RecordAccess increments a record's access count.
func (s *Store) RecordAccess(ctx context.Context, id string) error {
	return s.expectOne(s.db.ExecContext(ctx,
		`UPDATE records SET access_count = access_count + 1 WHERE id = ?`, id,
	))
}

// Stats summarises the records table.
type Stats struct {
	Records       int `db:"records"`
	WithEmbedding int `db:"with_embedding"`
	Tagged        int `db:"tagged"`
	Apps          int `db:"apps"`
	Dimensions    int `db:"-"`
}

// Stats returns record counts. Dimensions is the width of the most recent
// stored embedding, 0 when none is stored.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS records,
			COALESCE(SUM(CASE WHEN length(embedding) > 0 THEN 1 ELSE 0 END), 0) AS with_embedding,
			COALESCE(SUM(CASE WHEN project_tag != '' THEN 1 ELSE 0 END), 0) AS tagged,
			COUNT(DISTINCT NULLIF(source_app, '')) AS apps
		FROM records
	`)
	if err != nil {
		return nil, err
	}

	var width sql.NullInt64
	err = s.db.GetContext(ctx, &width, `
		SELECT length(embedding) / 8 FROM records
		WHERE length(embedding) > 0
		ORDER BY created_at DESC
		LIMIT 1
	`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	stats.Dimensions = int(width.Int64)

	return &stats, nil
}

func (s *Store) expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// nilIfEmpty stores empty blobs as NULL.
func nilIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
