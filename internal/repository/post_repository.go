package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrPostNotFound = errors.New("post does not exist")
	ErrPostExists   = errors.New("post already exists")
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context) ([]*models.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Remove(ctx context.Context, id string) error
}

const postsSchema = `
	CREATE TABLE IF NOT EXISTS posts (
		id                 TEXT PRIMARY KEY,
		content            TEXT NOT NULL,
		media_kind         TEXT,
		media_content_type TEXT,
		media_size         BIGINT,
		media_file_name    TEXT,
		media_staged_ref   TEXT,
		media_remote_ref   TEXT,
		scheduled_at       TIMESTAMPTZ,
		status             TEXT NOT NULL,
		error_message      TEXT,
		published_at       TIMESTAMPTZ,
		external_id        TEXT,
		external_url       TEXT,
		remote_id          TEXT,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL,
		CONSTRAINT posts_error_iff_failed CHECK ((status = 'failed') = (COALESCE(error_message, '') <> '')),
		CONSTRAINT posts_published_iff_posted CHECK ((status = 'posted') = (published_at IS NOT NULL))
	);
	CREATE INDEX IF NOT EXISTS posts_due_idx ON posts (scheduled_at) WHERE status = 'scheduled';
`

const postColumns = `id, content, media_kind, media_content_type, media_size, media_file_name, media_staged_ref, media_remote_ref,
	scheduled_at, status, error_message, published_at, external_id, external_url, remote_id, created_at, updated_at`

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

// EnsureSchema creates the posts and posting_history tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, schema := range []string{postsSchema, postingHistorySchema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			slog.Info(err.Error())
			return err
		}
	}
	return nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query, postArgs(post)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrPostExists
		}
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) List(ctx context.Context) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY created_at DESC, id DESC`
	return r.query(ctx, query)
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_at <= $2 ORDER BY scheduled_at`
	return r.query(ctx, query, models.PostStatusScheduled, now)
}

func (r *postRepository) query(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

// Update writes every mutable column in one statement so a settled publish is
// never observed half-applied.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	query := `
		UPDATE posts
		SET content = $2,
			media_kind = $3,
			media_content_type = $4,
			media_size = $5,
			media_file_name = $6,
			media_staged_ref = $7,
			media_remote_ref = $8,
			scheduled_at = $9,
			status = $10,
			error_message = $11,
			published_at = $12,
			external_id = $13,
			external_url = $14,
			remote_id = $15,
			updated_at = $16
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, updateArgs(post)...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affectedRows, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affectedRows == 0 {
		return ErrPostNotFound
	}

	return nil
}

func (r *postRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affectedRows, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affectedRows == 0 {
		return ErrPostNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post                                             models.Post
		kind, contentType, fileName, stagedRef, remoteRef sql.NullString
		size                                             sql.NullInt64
		scheduledAt, publishedAt                         sql.NullTime
		errorMessage, externalID, externalURL, remoteID  sql.NullString
	)

	err := row.Scan(&post.ID, &post.Content, &kind, &contentType, &size, &fileName, &stagedRef, &remoteRef,
		&scheduledAt, &post.Status, &errorMessage, &publishedAt, &externalID, &externalURL, &remoteID,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if stagedRef.Valid && stagedRef.String != "" {
		post.Media = &models.MediaAsset{
			Kind:        kind.String,
			ContentType: contentType.String,
			SizeBytes:   size.Int64,
			FileName:    fileName.String,
			StagedRef:   stagedRef.String,
			RemoteRef:   remoteRef.String,
		}
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		post.ScheduledAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	post.ErrorMessage = errorMessage.String
	post.ExternalID = externalID.String
	post.ExternalURL = externalURL.String
	post.RemoteID = remoteID.String

	return &post, nil
}

func postArgs(post *models.Post) []any {
	var kind, contentType, fileName, stagedRef, remoteRef sql.NullString
	var size sql.NullInt64
	if m := post.Media; m != nil {
		kind = nullString(m.Kind)
		contentType = nullString(m.ContentType)
		fileName = nullString(m.FileName)
		stagedRef = nullString(m.StagedRef)
		remoteRef = nullString(m.RemoteRef)
		size = sql.NullInt64{Int64: m.SizeBytes, Valid: true}
	}

	return []any{
		post.ID, post.Content, kind, contentType, size, fileName, stagedRef, remoteRef,
		nullTime(post.ScheduledAt), post.Status, nullString(post.ErrorMessage), nullTime(post.PublishedAt),
		nullString(post.ExternalID), nullString(post.ExternalURL), nullString(post.RemoteID),
		post.CreatedAt, post.UpdatedAt,
	}
}

// updateArgs drops created_at, which never changes after insert.
func updateArgs(post *models.Post) []any {
	args := postArgs(post)
	return append(args[:15:15], post.UpdatedAt)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
