package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	ids []string
	err error
}

func (f *fakePublisher) Publish(ctx context.Context, id string) (*models.Post, error) {
	f.ids = append(f.ids, id)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Post{ID: id, Status: models.PostStatusPosted}, nil
}

func TestNewPublishTask(t *testing.T) {
	task, opts, err := NewPublishTask(PublishPostPayload{PostID: "abc"}, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, TaskTypePublishPost, task.Type())
	var payload PublishPostPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "abc", payload.PostID)

	byType := map[asynq.OptionType]any{}
	for _, o := range opts {
		byType[o.Type()] = o.Value()
	}
	assert.Equal(t, time.Minute, byType[asynq.ProcessInOpt])
	assert.Equal(t, "publish:post:abc", byType[asynq.TaskIDOpt])
	assert.Equal(t, 0, byType[asynq.MaxRetryOpt])
}

func TestHandlePublishPostTask(t *testing.T) {
	payload, err := json.Marshal(PublishPostPayload{PostID: "abc"})
	require.NoError(t, err)
	task := asynq.NewTask(TaskTypePublishPost, payload)

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"published", nil, false},
		{"removed", service.ErrNotFound, false},
		{"busy", service.ErrAlreadyInProgress, false},
		{"already posted", service.ErrInvalidTransition, false},
		{"backend down", service.ErrBackendUnavailable, true},
		{"store failure", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{err: tt.err}
			q := NewQueue(pub)

			err := q.HandlePublishPostTask(context.Background(), task)

			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, []string{"abc"}, pub.ids)
		})
	}
}

func TestHandlePublishPostTask_BadPayload(t *testing.T) {
	q := NewQueue(&fakePublisher{})

	err := q.HandlePublishPostTask(context.Background(), asynq.NewTask(TaskTypePublishPost, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
}
