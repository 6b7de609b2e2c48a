package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
)

func (j *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	return j.PublishPost(ctx, payload.PostID)
}

// PublishPost runs a scheduled publish. Outcomes that a later delivery could
// not change are swallowed so the task is not reported as failed.
func (j *Queue) PublishPost(ctx context.Context, postID string) error {
	post, err := j.ps.Publish(ctx, postID)
	switch {
	case err == nil:
		slog.Info("scheduled publish finished", "post_id", postID, "status", post.Status)
		return nil
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrAlreadyInProgress),
		errors.Is(err, service.ErrInvalidTransition):
		slog.Info("scheduled publish skipped", "post_id", postID, "reason", err.Error())
		return nil
	default:
		slog.Error("scheduled publish", "post_id", postID, "error", err)
		return err
	}
}

func (j *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, j.HandlePublishPostTask)
	return mux
}
