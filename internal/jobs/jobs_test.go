package job

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/assert"
)

type fakeLifecycle struct {
	mu   sync.Mutex
	due  []*models.Post
	ids  []string
	errs map[string]error
}

func (f *fakeLifecycle) Due(ctx context.Context) ([]*models.Post, error) {
	return f.due, nil
}

func (f *fakeLifecycle) Publish(ctx context.Context, id string) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return &models.Post{ID: id, Status: models.PostStatusPosted}, nil
}

func TestPublishDuePosts(t *testing.T) {
	lc := &fakeLifecycle{
		due: []*models.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		errs: map[string]error{
			"b": service.ErrAlreadyInProgress,
			"c": service.ErrBackendUnavailable,
		},
	}

	NewDuePostJob(lc).PublishDuePosts()

	sort.Strings(lc.ids)
	assert.Equal(t, []string{"a", "b", "c"}, lc.ids)
}

type fakeChecker struct{ calls int }

func (f *fakeChecker) Check(ctx context.Context) bool {
	f.calls++
	return false
}

func TestRefreshHealth(t *testing.T) {
	hc := &fakeChecker{}

	NewHealthJob(hc).RefreshHealth()

	assert.Equal(t, 1, hc.calls)
}
