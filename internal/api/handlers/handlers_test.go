package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/backend"
	"github.com/maheshrc27/postflow/internal/health"
	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52}

type fakeRemote struct {
	healthy      atomic.Bool
	publishCalls atomic.Int32
	publishFails atomic.Int32
	rejectWith   string
}

func (r *fakeRemote) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch {
	case req.URL.Path == "/api/health":
		if !r.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"status":"healthy"}`)
	case req.URL.Path == "/api/posts" && req.Method == http.MethodPost:
		io.WriteString(w, `{"success":true,"post":{"id":17,"status":"draft"}}`)
	case req.URL.Path == "/api/posts/17/publish":
		r.publishCalls.Add(1)
		if r.publishFails.Load() > 0 {
			r.publishFails.Add(-1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.rejectWith != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"detail":%q}`, r.rejectWith)
			return
		}
		io.WriteString(w, `{"success":true,"post":{"id":17},"providerResult":{"success":true,"externalId":"42","url":"https://x/42"}}`)
	case req.URL.Path == "/api/publish-direct":
		io.WriteString(w, `{"success":true,"post":{"id":18},"providerResult":{"success":true,"externalId":"43"}}`)
	case req.URL.Path == "/api/twitter/status":
		io.WriteString(w, `{"connected":true,"username":"postflow"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestApp(t *testing.T) (*fiber.App, *fakeRemote) {
	t.Helper()
	remote := &fakeRemote{}
	remote.healthy.Store(true)
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL+"/api", 5*time.Second)
	monitor := health.NewMonitor(client, time.Second, time.Nanosecond)
	coord, err := media.NewCoordinator(t.TempDir(), media.Limits{MaxImageBytes: 1024})
	require.NoError(t, err)

	policy := retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
	ps := service.NewPostService(repository.NewMemoryPostRepository(), repository.NewMemoryPostingHistoryRepository(), client, monitor, coord, service.NewBackendUploader(client), nil, policy)

	app := fiber.New()
	RegisterRoutes(app.Group("/api"), NewPostHandler(ps), NewPlatformHandler(monitor, client))
	return app, remote
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileName, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func createPost(t *testing.T, app *fiber.App, body transfer.PostCreation) models.Post {
	t.Helper()
	resp, data := doJSON(t, app, http.MethodPost, "/api/posts", body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(data))
	var post models.Post
	require.NoError(t, json.Unmarshal(data, &post))
	return post
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	app, remote := newTestApp(t)
	remote.publishFails.Store(2)

	post := createPost(t, app, transfer.PostCreation{Content: "hello"})
	assert.Equal(t, models.PostStatusDraft, post.Status)

	resp, data := doJSON(t, app, http.MethodPost, "/api/posts/"+post.ID+"/publish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))

	var result struct {
		Success bool        `json:"success"`
		Post    models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, models.PostStatusPosted, result.Post.Status)
	assert.Equal(t, "https://x/42", result.Post.ExternalURL)
	assert.NotNil(t, result.Post.PublishedAt)
	assert.Equal(t, int32(3), remote.publishCalls.Load())

	resp, _ = doJSON(t, app, http.MethodPost, "/api/posts/"+post.ID+"/publish", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, int32(3), remote.publishCalls.Load())

	resp, data = doJSON(t, app, http.MethodGet, "/api/posts/"+post.ID+"/history", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history []models.PostingHistory
	require.NoError(t, json.Unmarshal(data, &history))
	assert.Len(t, history, 3)

	resp, data = doJSON(t, app, http.MethodGet, "/api/posts", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var posts []models.Post
	require.NoError(t, json.Unmarshal(data, &posts))
	require.Len(t, posts, 1)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/posts/"+post.ID, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/posts/"+post.ID, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPublish_RejectionIsRecorded(t *testing.T) {
	app, remote := newTestApp(t)
	remote.rejectWith = "duplicate content"
	post := createPost(t, app, transfer.PostCreation{Content: "hello"})

	resp, data := doJSON(t, app, http.MethodPost, "/api/posts/"+post.ID+"/publish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result transfer.PublishResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.False(t, result.Success)
	assert.Equal(t, "duplicate content", result.Error)
	assert.Equal(t, int32(1), remote.publishCalls.Load())
}

func TestPublish_BackendOffline(t *testing.T) {
	app, remote := newTestApp(t)
	post := createPost(t, app, transfer.PostCreation{Content: "hello"})
	remote.healthy.Store(false)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/posts/"+post.ID+"/publish", nil)

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Zero(t, remote.publishCalls.Load())
}

func TestCreatePost_Validation(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/posts", transfer.PostCreation{Content: ""})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/posts", transfer.PostCreation{Content: "x", ScheduledAt: "tomorrow"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	post := createPost(t, app, transfer.PostCreation{Content: "x", ScheduledAt: time.Now().Add(time.Hour).Format(time.RFC3339)})
	assert.Equal(t, models.PostStatusScheduled, post.Status)
}

func TestUploadMedia(t *testing.T) {
	app, _ := newTestApp(t)

	resp, data := do(t, app, multipartRequest(t, "/api/media", nil, "a.png", "image/png", pngHeader))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(data))
	var staged transfer.StagedMedia
	require.NoError(t, json.Unmarshal(data, &staged))
	assert.Equal(t, models.MediaKindImage, staged.Kind)
	assert.True(t, strings.HasPrefix(staged.PreviewURL, "data:image/png;base64,"))

	post := createPost(t, app, transfer.PostCreation{Content: "pic", MediaRef: staged.StagedRef})
	require.NotNil(t, post.Media)
	assert.Equal(t, staged.StagedRef, post.Media.StagedRef)

	resp, _ = do(t, app, multipartRequest(t, "/api/media", nil, "a.txt", "text/plain", []byte("hello")))
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)

	resp, _ = do(t, app, multipartRequest(t, "/api/media", nil, "big.png", "image/png", append(append([]byte{}, pngHeader...), make([]byte, 2048)...)))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, _ = do(t, app, multipartRequest(t, "/api/media", map[string]string{"content": "x"}, "", "", nil))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPublishDirect(t *testing.T) {
	app, _ := newTestApp(t)

	resp, data := do(t, app, multipartRequest(t, "/api/publish-direct", map[string]string{"content": "hi"}, "a.png", "image/png", pngHeader))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))

	var result struct {
		Success bool        `json:"success"`
		Post    models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "43", result.Post.ExternalID)
	assert.Equal(t, "18", result.Post.RemoteID)
}

func TestHealthAndPlatformStatus(t *testing.T) {
	app, remote := newTestApp(t)

	resp, data := doJSON(t, app, http.MethodGet, "/api/health", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var status health.Status
	require.NoError(t, json.Unmarshal(data, &status))
	assert.True(t, status.Known)
	assert.True(t, status.Online)

	remote.healthy.Store(false)
	resp, _ = doJSON(t, app, http.MethodGet, "/api/health", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, data = doJSON(t, app, http.MethodGet, "/api/platforms/twitter/status", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var ps transfer.PlatformStatus
	require.NoError(t, json.Unmarshal(data, &ps))
	assert.True(t, ps.Connected)
}
