package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// NewPublishTask builds the task for one post. The task id is derived from the
// post id so a post is never queued twice.
func NewPublishTask(payload PublishPostPayload, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	if delay < 0 {
		delay = 0
	}
	opts := []asynq.Option{
		asynq.ProcessIn(delay),
		asynq.TaskID(TaskTypePublishPost + ":" + payload.PostID),
		// retries happen inside Publish
		asynq.MaxRetry(0),
	}
	return asynq.NewTask(TaskTypePublishPost, taskPayload), opts, nil
}

func EnqueuePost(ctx context.Context, asynqClient *asynq.Client, payload PublishPostPayload, delay time.Duration) error {
	task, opts, err := NewPublishTask(payload, delay)
	if err != nil {
		return err
	}

	_, err = asynqClient.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			slog.Info("publish task already queued", "post_id", payload.PostID)
			return nil
		}
		return err
	}

	slog.Info("publish task scheduled", "post_id", payload.PostID, "delay", delay)
	return nil
}

// Scheduler enqueues publish tasks on Redis for scheduled posts.
type Scheduler struct {
	client *asynq.Client
	now    func() time.Time
}

func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client, now: time.Now}
}

func (s *Scheduler) Schedule(ctx context.Context, postID string, at time.Time) error {
	return EnqueuePost(ctx, s.client, PublishPostPayload{PostID: postID}, at.Sub(s.now()))
}
