package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow/internal/models"
)

type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) (int64, error)
	ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error)
}

const postingHistorySchema = `
	CREATE TABLE IF NOT EXISTS posting_history (
		id            BIGSERIAL PRIMARY KEY,
		post_id       TEXT NOT NULL,
		attempt       INTEGER NOT NULL,
		succeeded     BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS posting_history_post_idx ON posting_history (post_id, id);
`

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	query := `
		INSERT INTO posting_history (post_id, attempt, succeeded, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, ph.PostID, ph.Attempt, ph.Succeeded, ph.ErrorMessage, ph.CreatedAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	query := `SELECT id, post_id, attempt, succeeded, error_message, created_at FROM posting_history WHERE post_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var phs []*models.PostingHistory
	for rows.Next() {
		var ph models.PostingHistory
		err := rows.Scan(&ph.ID, &ph.PostID, &ph.Attempt, &ph.Succeeded, &ph.ErrorMessage, &ph.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		phs = append(phs, &ph)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return phs, nil
}

type memoryPostingHistoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	entries []*models.PostingHistory
}

func NewMemoryPostingHistoryRepository() PostingHistoryRepository {
	return &memoryPostingHistoryRepository{}
}

func (r *memoryPostingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry := *ph
	entry.ID = r.nextID
	r.entries = append(r.entries, &entry)
	return entry.ID, nil
}

func (r *memoryPostingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var phs []*models.PostingHistory
	for _, e := range r.entries {
		if e.PostID == postID {
			c := *e
			phs = append(phs, &c)
		}
	}
	return phs, nil
}
