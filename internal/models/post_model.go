package models

import (
	"errors"
	"time"
)

// ErrValidation marks bad local input. It is never retried.
var ErrValidation = errors.New("validation failed")

type Post struct {
	ID           string      `db:"id" json:"id"`
	Content      string      `db:"content" json:"content"`
	Media        *MediaAsset `json:"media,omitempty"`
	ScheduledAt  *time.Time  `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status       string      `db:"status" json:"status"` // draft, scheduled, posted, failed
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	PublishedAt  *time.Time  `db:"published_at" json:"published_at,omitempty"`
	ExternalID   string      `db:"external_id" json:"external_id,omitempty"`
	ExternalURL  string      `db:"external_url" json:"external_url,omitempty"`
	RemoteID     string      `db:"remote_id" json:"remote_id,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	Kind        string `db:"media_kind" json:"kind"` // image, video
	ContentType string `db:"media_content_type" json:"content_type"`
	SizeBytes   int64  `db:"media_size" json:"size_bytes"`
	FileName    string `db:"media_file_name" json:"file_name,omitempty"`
	StagedRef   string `db:"media_staged_ref" json:"staged_ref"`
	RemoteRef   string `db:"media_remote_ref" json:"remote_ref,omitempty"`
}

const (
	PostStatusScheduled = "scheduled"
	PostStatusPosted    = "posted"
	PostStatusFailed    = "failed"
	PostStatusDraft     = "draft"
)

const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)

var postTransitions = map[string][]string{
	PostStatusDraft:     {PostStatusScheduled, PostStatusPosted, PostStatusFailed},
	PostStatusScheduled: {PostStatusPosted, PostStatusFailed},
	PostStatusFailed:    {PostStatusPosted},
}

// CanTransition reports whether a post may move from one status to another.
// Posted is terminal.
func CanTransition(from, to string) bool {
	for _, next := range postTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsDue reports whether a scheduled post may be published at now.
func (p *Post) IsDue(now time.Time) bool {
	if p.ScheduledAt == nil {
		return true
	}
	return !now.Before(*p.ScheduledAt)
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	if p.Media != nil {
		m := *p.Media
		c.Media = &m
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		c.ScheduledAt = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}
