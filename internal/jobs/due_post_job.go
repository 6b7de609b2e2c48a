package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

const sweepConcurrency = 10

// Lifecycle is the part of the post service the sweep drives.
type Lifecycle interface {
	Due(ctx context.Context) ([]*models.Post, error)
	Publish(ctx context.Context, id string) (*models.Post, error)
}

// DuePostJob publishes scheduled posts whose time has come. It backs up the
// queue, which may be absent or may have lost tasks.
type DuePostJob struct {
	ps Lifecycle
}

func NewDuePostJob(ps Lifecycle) *DuePostJob {
	return &DuePostJob{ps: ps}
}

func (c *DuePostJob) PublishDuePosts() {
	ctx := context.Background()

	posts, err := c.ps.Due(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, sweepConcurrency)

	for _, post := range posts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			published, err := c.ps.Publish(ctx, id)
			switch {
			case err == nil:
				slog.Info("due post published", "post_id", id, "status", published.Status)
			case errors.Is(err, service.ErrAlreadyInProgress), errors.Is(err, service.ErrNotFound):
			case errors.Is(err, service.ErrBackendUnavailable):
				slog.Info("due post deferred, backend offline", "post_id", id)
			default:
				slog.Error("publish due post", "post_id", id, "error", err)
			}
		}(post.ID)
	}

	wg.Wait()
}
