package transfer

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RemoteID is the backend's post identifier. The backend has used both
// numeric and string ids, so either JSON form is accepted.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RemoteID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RemoteID(n.String())
	return nil
}

func (id RemoteID) String() string {
	return string(id)
}

type CreatePostRequest struct {
	Content       string `json:"content"`
	ImageURL      string `json:"image_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

type RemotePost struct {
	ID           RemoteID `json:"id"`
	Content      string   `json:"content"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
}

type CreatePostResponse struct {
	Success bool       `json:"success"`
	Post    RemotePost `json:"post"`
}

type ProviderResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"externalId"`
	PostID     string `json:"post_id"`
	URL        string `json:"url"`
	Error      string `json:"error"`
}

// ExternalPostID returns the platform id, whichever field the backend filled.
func (r ProviderResult) ExternalPostID() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	return r.PostID
}

type PublishResponse struct {
	Success        bool            `json:"success"`
	Post           RemotePost      `json:"post"`
	ProviderResult *ProviderResult `json:"providerResult"`
	TwitterResult  *ProviderResult `json:"twitter_result"`
}

// Provider returns the platform outcome, preferring providerResult over the
// older twitter_result field.
func (r PublishResponse) Provider() ProviderResult {
	if r.ProviderResult != nil {
		return *r.ProviderResult
	}
	if r.TwitterResult != nil {
		return *r.TwitterResult
	}
	return ProviderResult{Success: r.Success}
}

type UploadResponse struct {
	Success     bool   `json:"success"`
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
	IsVideo     bool   `json:"is_video"`
}

type PlatformStatus struct {
	Connected    bool   `json:"connected"`
	Username     string `json:"username,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Name         string `json:"name,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ErrorBody covers the error shapes the backend returns: FastAPI's detail,
// and plain error/message fields.
type ErrorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Text returns the first non-empty message in the body.
func (b ErrorBody) Text() string {
	if len(b.Detail) > 0 {
		var s string
		if err := json.Unmarshal(b.Detail, &s); err == nil && s != "" {
			return s
		}
		// validation errors arrive as a list of {msg: ...}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(b.Detail, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	if b.Error != "" {
		return b.Error
	}
	return b.Message
}

// StatusText is the fallback message when a rejection carries no readable body.
func StatusText(code int) string {
	return "HTTP " + strconv.Itoa(code)
}
