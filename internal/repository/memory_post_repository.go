package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type memoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*models.Post
}

// NewMemoryPostRepository keeps posts in process memory. Used when no
// Postgres URI is configured and in tests.
func NewMemoryPostRepository() PostRepository {
	return &memoryPostRepository{posts: make(map[string]*models.Post)}
}

func (r *memoryPostRepository) Create(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.posts[post.ID]; exists {
		return ErrPostExists
	}
	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *memoryPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	return post.Clone(), nil
}

func (r *memoryPostRepository) List(ctx context.Context) ([]*models.Post, error) {
	r.mu.RLock()
	posts := make([]*models.Post, 0, len(r.posts))
	for _, p := range r.posts {
		posts = append(posts, p.Clone())
	}
	r.mu.RUnlock()

	sortNewestFirst(posts)
	return posts, nil
}

func (r *memoryPostRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	r.mu.RLock()
	var posts []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(now) {
			posts = append(posts, p.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ScheduledAt.Before(*posts[j].ScheduledAt)
	})
	return posts, nil
}

func (r *memoryPostRepository) Update(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; !ok {
		return ErrPostNotFound
	}
	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *memoryPostRepository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return ErrPostNotFound
	}
	delete(r.posts, id)
	return nil
}

func sortNewestFirst(posts []*models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
