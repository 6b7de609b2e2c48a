package queue

import (
	"context"

	"github.com/maheshrc27/postflow/internal/models"
)

// Publisher is the lifecycle operation a publish task runs.
type Publisher interface {
	Publish(ctx context.Context, id string) (*models.Post, error)
}

type Queue struct {
	ps Publisher
}

func NewQueue(ps Publisher) *Queue {
	return &Queue{ps: ps}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID string `json:"post_id"`
}
