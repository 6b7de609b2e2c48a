// Package backend is the transport to the publishing backend. Every call is a
// single request/response exchange; failures come back classified as
// *RemoteRejectedError or *UnreachableError.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/transfer"
)

const defaultTimeout = 60 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client rooted at baseURL, e.g. http://localhost:8000/api.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Request describes one exchange. JSON, when set, is marshalled as the body;
// otherwise Body is sent as-is with ContentType.
type Request struct {
	Method      string
	Path        string
	JSON        any
	Body        io.Reader
	ContentType string
}

type Response struct {
	StatusCode int
	Body       []byte
}

// Send performs the exchange. Non-2xx answers become *RemoteRejectedError,
// connection-level failures become *UnreachableError.
func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	op := r.Method + " " + r.Path

	body := r.Body
	contentType := r.ContentType
	if r.JSON != nil {
		payload, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL+r.Path, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnreachableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnreachableError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteRejectedError{
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(resp.StatusCode, respBody),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func rejectionMessage(code int, body []byte) string {
	var eb transfer.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := eb.Text(); msg != "" {
			return msg
		}
	}
	return transfer.StatusText(code)
}

func (c *Client) do(ctx context.Context, r Request, result any) (*Response, error) {
	resp, err := c.Send(ctx, r)
	if err != nil {
		return nil, err
	}
	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return nil, fmt.Errorf("unmarshal %s %s response: %w", r.Method, r.Path, err)
		}
	}
	return resp, nil
}

// CreatePost registers a draft or scheduled post with the backend.
func (c *Client) CreatePost(ctx context.Context, in transfer.CreatePostRequest) (*transfer.RemotePost, error) {
	var out transfer.CreatePostResponse
	if _, err := c.do(ctx, Request{Method: http.MethodPost, Path: "/posts", JSON: in}, &out); err != nil {
		return nil, err
	}
	if out.Post.ID == "" {
		return nil, fmt.Errorf("create post: backend returned no post id")
	}
	return &out.Post, nil
}

// DeletePost removes the backend's record of a post.
func (c *Client) DeletePost(ctx context.Context, remoteID string) error {
	_, err := c.do(ctx, Request{Method: http.MethodDelete, Path: "/posts/" + url.PathEscape(remoteID)}, nil)
	return err
}

// PublishPost asks the backend to publish an existing post. A 2xx answer whose
// body reports failure is returned as a rejection carrying the provider error.
func (c *Client) PublishPost(ctx context.Context, remoteID string) (*transfer.PublishResponse, error) {
	var out transfer.PublishResponse
	resp, err := c.do(ctx, Request{Method: http.MethodPost, Path: "/posts/" + url.PathEscape(remoteID) + "/publish"}, &out)
	if err != nil {
		return nil, err
	}
	return checkPublished(resp.StatusCode, &out)
}

// FilePart is a file sent as multipart form data.
type FilePart struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// PublishDirect publishes content plus an optional file in one call.
func (c *Client) PublishDirect(ctx context.Context, content string, file *FilePart) (*transfer.PublishResponse, error) {
	body, contentType := multipartBody(map[string]string{"content": content}, file)

	var out transfer.PublishResponse
	resp, err := c.do(ctx, Request{Method: http.MethodPost, Path: "/publish-direct", Body: body, ContentType: contentType}, &out)
	if err != nil {
		return nil, err
	}
	return checkPublished(resp.StatusCode, &out)
}

// Upload stores a media file on the backend and returns its stable reference.
func (c *Client) Upload(ctx context.Context, file FilePart) (*transfer.UploadResponse, error) {
	body, contentType := multipartBody(nil, &file)

	var out transfer.UploadResponse
	if _, err := c.do(ctx, Request{Method: http.MethodPost, Path: "/upload", Body: body, ContentType: contentType}, &out); err != nil {
		return nil, err
	}
	if out.FilePath == "" {
		return nil, fmt.Errorf("upload: backend returned no file reference")
	}
	return &out, nil
}

// Health probes the backend's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Send(ctx, Request{Method: http.MethodGet, Path: "/health"})
	return err
}

// PlatformStatus returns the connection status of a publishing platform.
func (c *Client) PlatformStatus(ctx context.Context, platform string) (*transfer.PlatformStatus, error) {
	var out transfer.PlatformStatus
	if _, err := c.do(ctx, Request{Method: http.MethodGet, Path: "/" + url.PathEscape(platform) + "/status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func checkPublished(statusCode int, out *transfer.PublishResponse) (*transfer.PublishResponse, error) {
	provider := out.Provider()
	if out.Success && provider.Success {
		return out, nil
	}
	msg := provider.Error
	if msg == "" {
		msg = "publish failed"
	}
	return nil, &RemoteRejectedError{StatusCode: statusCode, Message: msg}
}

// multipartBody streams fields and an optional file through a pipe so large
// videos are never held in memory.
func multipartBody(fields map[string]string, file *FilePart) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, fields, file)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, file *FilePart) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if file == nil || file.Body == nil {
		return nil
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.FileName))
	h.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file.Body)
	return err
}
