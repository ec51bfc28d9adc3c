package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

const postColumns = "week_key, content, status, created_at, updated_at, approved_at, published_at, external_post_id, external_post_url, error_message, retry_count, metadata"

// PostgresStore persists post records into Postgres, for deployments where
// the dashboard and the scheduler do not share a filesystem.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.PostStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Save upserts the record snapshot for its week key.
func (s *PostgresStore) Save(ctx context.Context, record domain.PostRecord) error {
	if !domain.ValidWeekKey(record.WeekKey) {
		return fmt.Errorf("save post: invalid week key %q", record.WeekKey)
	}

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", record.WeekKey, err)
	}

	query, args, err := s.builder.
		Insert("posts").
		Columns("week_key", "content", "status", "created_at", "updated_at",
			"approved_at", "published_at", "external_post_id", "external_post_url",
			"error_message", "retry_count", "metadata").
		Values(record.WeekKey, record.Content, record.Status, record.CreatedAt, record.UpdatedAt,
			record.ApprovedAt, record.PublishedAt, record.ExternalPostID, record.ExternalPostURL,
			record.ErrorMessage, record.RetryCount, metadata).
		Suffix(`ON CONFLICT (week_key) DO UPDATE SET
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			approved_at = EXCLUDED.approved_at,
			published_at = EXCLUDED.published_at,
			external_post_id = EXCLUDED.external_post_id,
			external_post_url = EXCLUDED.external_post_url,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			metadata = EXCLUDED.metadata`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert post %s: %w", record.WeekKey, err)
	}
	return nil
}

// Load returns the record for weekKey; absence is reported via the bool.
func (s *PostgresStore) Load(ctx context.Context, weekKey string) (domain.PostRecord, bool, error) {
	if !domain.ValidWeekKey(weekKey) {
		return domain.PostRecord{}, false, fmt.Errorf("load post: invalid week key %q", weekKey)
	}

	query, args, err := s.builder.
		Select(postColumns).
		From("posts").
		Where(sq.Eq{"week_key": weekKey}).
		ToSql()
	if err != nil {
		return domain.PostRecord{}, false, fmt.Errorf("build select: %w", err)
	}

	record, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PostRecord{}, false, nil
	}
	if err != nil {
		return domain.PostRecord{}, false, fmt.Errorf("load post %s: %w", weekKey, err)
	}
	return record, true, nil
}

// List returns records sorted newest-first, optionally filtered by status.
func (s *PostgresStore) List(ctx context.Context, status domain.PostStatus, limit int) ([]domain.PostRecord, error) {
	builder := s.builder.
		Select(postColumns).
		From("posts").
		OrderBy("created_at DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": status})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var records []domain.PostRecord
	for rows.Next() {
		record, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

// Delete removes the record for weekKey.
func (s *PostgresStore) Delete(ctx context.Context, weekKey string) error {
	query, args, err := s.builder.
		Delete("posts").
		Where(sq.Eq{"week_key": weekKey}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", weekKey, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("delete post %s: not found", weekKey)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (domain.PostRecord, error) {
	var (
		record      domain.PostRecord
		approvedAt  sql.NullTime
		publishedAt sql.NullTime
		metadata    []byte
	)
	err := row.Scan(&record.WeekKey, &record.Content, &record.Status,
		&record.CreatedAt, &record.UpdatedAt, &approvedAt, &publishedAt,
		&record.ExternalPostID, &record.ExternalPostURL,
		&record.ErrorMessage, &record.RetryCount, &metadata)
	if err != nil {
		return domain.PostRecord{}, err
	}

	record.ApprovedAt = nullableTime(approvedAt)
	record.PublishedAt = nullableTime(publishedAt)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return domain.PostRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return record, nil
}

func nullableTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
