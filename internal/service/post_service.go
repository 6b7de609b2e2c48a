package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/backend"
	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/retry"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultFailureMessage = "publish failed"

// Backend is the part of the transport the lifecycle drives.
type Backend interface {
	CreatePost(ctx context.Context, in transfer.CreatePostRequest) (*transfer.RemotePost, error)
	DeletePost(ctx context.Context, remoteID string) error
	PublishPost(ctx context.Context, remoteID string) (*transfer.PublishResponse, error)
	PublishDirect(ctx context.Context, content string, file *backend.FilePart) (*transfer.PublishResponse, error)
}

// HealthGate answers whether the backend is worth calling right now.
type HealthGate interface {
	Available(ctx context.Context) bool
}

type MediaStore interface {
	Stage(file media.File) (*media.Staged, error)
	Claim(ref string) (*media.Staged, error)
	Release(ref string)
	Open(ref string) (io.ReadCloser, error)
	Discard(ref string) error
}

// Scheduler dispatches a publish for a scheduled post at its due time.
type Scheduler interface {
	Schedule(ctx context.Context, postID string, at time.Time) error
}

type PostService interface {
	Create(ctx context.Context, content, mediaRef string, scheduledAt *time.Time) (*models.Post, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context) ([]*models.Post, error)
	Due(ctx context.Context) ([]*models.Post, error)
	History(ctx context.Context, id string) ([]*models.PostingHistory, error)
	Remove(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*models.Post, error)
	PublishDirect(ctx context.Context, content string, file *media.File) (*models.Post, error)
	StageMedia(file media.File) (*media.Staged, error)
}

type postService struct {
	pr        repository.PostRepository
	ph        repository.PostingHistoryRepository
	backend   Backend
	health    HealthGate
	media     MediaStore
	uploader  MediaUploader
	scheduler Scheduler
	policy    retry.Policy
	inflight  *inflightGuard
	now       func() time.Time
}

// NewPostService wires the post lifecycle. ph and scheduler may be nil; without
// a scheduler, scheduled posts are only picked up by the due sweep.
func NewPostService(
	pr repository.PostRepository,
	ph repository.PostingHistoryRepository,
	be Backend,
	health HealthGate,
	ms MediaStore,
	uploader MediaUploader,
	scheduler Scheduler,
	policy retry.Policy) PostService {
	return newPostService(pr, ph, be, health, ms, uploader, scheduler, policy)
}

func newPostService(
	pr repository.PostRepository,
	ph repository.PostingHistoryRepository,
	be Backend,
	health HealthGate,
	ms MediaStore,
	uploader MediaUploader,
	scheduler Scheduler,
	policy retry.Policy) *postService {
	// deterministic rejections must never be retried
	policy.IsRetryable = backend.IsRetryable
	return &postService{
		pr:        pr,
		ph:        ph,
		backend:   be,
		health:    health,
		media:     ms,
		uploader:  uploader,
		scheduler: scheduler,
		policy:    policy,
		inflight:  newInflightGuard(),
		now:       time.Now,
	}
}

func (s *postService) Create(ctx context.Context, content, mediaRef string, scheduledAt *time.Time) (*models.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	now := s.now()
	if scheduledAt != nil && !scheduledAt.After(now) {
		return nil, &ValidationError{Field: "scheduled_at", Reason: "must be in the future"}
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}

	post := &models.Post{
		ID:        id,
		Content:   content,
		Status:    models.PostStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if scheduledAt != nil {
		at := scheduledAt.UTC()
		post.ScheduledAt = &at
		post.Status = models.PostStatusScheduled
	}

	if mediaRef != "" {
		staged, err := s.media.Claim(mediaRef)
		if err != nil {
			if errors.Is(err, media.ErrNotStaged) {
				return nil, &ValidationError{Field: "media_ref", Reason: "is not a staged file"}
			}
			if errors.Is(err, media.ErrAlreadyAttached) {
				return nil, &ValidationError{Field: "media_ref", Reason: "is already attached to another post"}
			}
			return nil, err
		}
		asset := staged.Asset
		post.Media = &asset
	}

	if err := s.pr.Create(ctx, post); err != nil {
		if post.Media != nil {
			s.media.Release(post.Media.StagedRef)
		}
		return nil, fmt.Errorf("save post: %w", err)
	}
	slog.Info("post created", "post_id", post.ID, "status", post.Status)

	if post.ScheduledAt != nil && s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, post.ID, *post.ScheduledAt); err != nil {
			// the due sweep still picks it up
			slog.Warn("schedule post", "post_id", post.ID, "error", err)
		}
	}

	return post, nil
}

func (s *postService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context) ([]*models.Post, error) {
	return s.pr.List(ctx)
}

func (s *postService) History(ctx context.Context, id string) ([]*models.PostingHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.ph == nil {
		return nil, nil
	}
	return s.ph.ListByPostID(ctx, id)
}

func (s *postService) Due(ctx context.Context) ([]*models.Post, error) {
	return s.pr.ListDue(ctx, s.now())
}

// Remove deletes the local record. The backend's copy of an unpublished draft
// is dropped on a best-effort basis; published content is left on the platform.
func (s *postService) Remove(ctx context.Context, id string) error {
	post, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pr.Remove(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}

	if post.RemoteID != "" && post.Status != models.PostStatusPosted {
		if err := s.backend.DeletePost(ctx, post.RemoteID); err != nil {
			slog.Warn("delete remote post", "post_id", id, "remote_id", post.RemoteID, "error", err)
		}
	}
	if post.Media != nil {
		if err := s.media.Discard(post.Media.StagedRef); err != nil {
			slog.Warn("discard staged media", "post_id", id, "ref", post.Media.StagedRef, "error", err)
		}
	}

	slog.Info("post removed", "post_id", id)
	return nil
}

func (s *postService) StageMedia(file media.File) (*media.Staged, error) {
	return s.media.Stage(file)
}

// Publish drives one post to posted or failed. Remote failures are recorded on
// the returned post; the error return is reserved for calls that never reached
// the backend.
func (s *postService) Publish(ctx context.Context, id string) (*models.Post, error) {
	if !s.inflight.acquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, id)
	}
	defer s.inflight.release(id)

	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if post.Status == models.PostStatusPosted {
		return nil, fmt.Errorf("%w: post %s is already posted", ErrInvalidTransition, id)
	}
	if post.Status == models.PostStatusScheduled && !post.IsDue(s.now()) {
		return nil, fmt.Errorf("%w: post %s is scheduled for %s", ErrInvalidTransition, id, post.ScheduledAt.Format(time.RFC3339))
	}

	if !s.health.Available(ctx) {
		return nil, ErrBackendUnavailable
	}

	// once started, a publish runs to completion regardless of the caller
	ctx = context.WithoutCancel(ctx)

	work := post.Clone()
	resp, err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*transfer.PublishResponse, error) {
		resp, err := s.attempt(ctx, work)
		s.recordAttempt(ctx, id, attempt, err)
		if err != nil {
			slog.Info("publish attempt failed", "post_id", id, "attempt", attempt+1, "retryable", backend.IsRetryable(err), "error", err)
			return nil, err
		}
		slog.Info("publish attempt succeeded", "post_id", id, "attempt", attempt+1)
		return resp, nil
	})

	return s.settle(ctx, post, work, resp, err)
}

// attempt uploads media and registers the remote draft on first use, keeping
// both references on work so later attempts reuse them.
func (s *postService) attempt(ctx context.Context, work *models.Post) (*transfer.PublishResponse, error) {
	if work.Media != nil && work.Media.RemoteRef == "" {
		ref, err := s.uploadMedia(ctx, *work.Media)
		if err != nil {
			return nil, err
		}
		work.Media.RemoteRef = ref
	}

	if work.RemoteID == "" {
		req := transfer.CreatePostRequest{Content: work.Content}
		if work.Media != nil {
			if work.Media.Kind == models.MediaKindVideo {
				req.VideoURL = work.Media.RemoteRef
			} else {
				req.ImageURL = work.Media.RemoteRef
			}
		}
		remote, err := s.backend.CreatePost(ctx, req)
		if err != nil {
			return nil, err
		}
		work.RemoteID = remote.ID.String()
	}

	return s.backend.PublishPost(ctx, work.RemoteID)
}

func (s *postService) uploadMedia(ctx context.Context, asset models.MediaAsset) (string, error) {
	f, err := s.media.Open(asset.StagedRef)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return s.uploader.Upload(ctx, asset, f)
}

// settle applies the outcome in a single write.
func (s *postService) settle(ctx context.Context, before, work *models.Post, resp *transfer.PublishResponse, publishErr error) (*models.Post, error) {
	now := s.now()
	settled := work.Clone()
	settled.UpdatedAt = now

	if publishErr == nil {
		provider := resp.Provider()
		settled.Status = models.PostStatusPosted
		settled.PublishedAt = &now
		settled.ErrorMessage = ""
		settled.ExternalID = provider.ExternalPostID()
		settled.ExternalURL = provider.URL
	} else {
		settled.Status = models.PostStatusFailed
		settled.ErrorMessage = failureMessage(publishErr)
	}

	if before.Status != settled.Status && !models.CanTransition(before.Status, settled.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, before.Status, settled.Status)
	}

	if err := s.pr.Update(ctx, settled); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			slog.Warn("post removed while publishing", "post_id", settled.ID)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, settled.ID)
		}
		return nil, fmt.Errorf("save post: %w", err)
	}

	slog.Info("publish settled", "post_id", settled.ID, "status", settled.Status, "external_id", settled.ExternalID)
	return settled, nil
}

// PublishDirect stages the optional file, publishes content and file in one
// backend call, and records the outcome as a new post.
func (s *postService) PublishDirect(ctx context.Context, content string, file *media.File) (*models.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	var staged *media.Staged
	if file != nil {
		var err error
		staged, err = s.media.Stage(*file)
		if err != nil {
			return nil, err
		}
	}

	if !s.health.Available(ctx) {
		if staged != nil {
			if err := s.media.Discard(staged.Asset.StagedRef); err != nil {
				slog.Warn("discard staged media", "ref", staged.Asset.StagedRef, "error", err)
			}
		}
		return nil, ErrBackendUnavailable
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	resp, publishErr := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*transfer.PublishResponse, error) {
		slog.Info("direct publish attempt", "post_id", id, "attempt", attempt+1)
		resp, err := s.publishDirect(ctx, content, staged)
		s.recordAttempt(ctx, id, attempt, err)
		return resp, err
	})

	now := s.now()
	post := &models.Post{
		ID:        id,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if staged != nil {
		asset := staged.Asset
		post.Media = &asset
	}
	if publishErr == nil {
		provider := resp.Provider()
		post.Status = models.PostStatusPosted
		post.PublishedAt = &now
		post.RemoteID = resp.Post.ID.String()
		post.ExternalID = provider.ExternalPostID()
		post.ExternalURL = provider.URL
	} else {
		post.Status = models.PostStatusFailed
		post.ErrorMessage = failureMessage(publishErr)
	}

	if err := s.pr.Create(ctx, post); err != nil {
		slog.Error("direct publish not recorded", "post_id", post.ID, "status", post.Status,
			"remote_id", post.RemoteID, "external_id", post.ExternalID, "error", err)
		if staged != nil {
			if derr := s.media.Discard(staged.Asset.StagedRef); derr != nil {
				slog.Warn("discard staged media", "post_id", post.ID, "ref", staged.Asset.StagedRef, "error", derr)
			}
		}
		return nil, fmt.Errorf("save post: %w", err)
	}

	slog.Info("direct publish settled", "post_id", post.ID, "status", post.Status)
	return post, nil
}

func (s *postService) publishDirect(ctx context.Context, content string, staged *media.Staged) (*transfer.PublishResponse, error) {
	if staged == nil {
		return s.backend.PublishDirect(ctx, content, nil)
	}
	f, err := s.media.Open(staged.Asset.StagedRef)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := staged.Asset.FileName
	if name == "" {
		name = staged.Asset.StagedRef
	}
	return s.backend.PublishDirect(ctx, content, &backend.FilePart{
		FileName:    name,
		ContentType: staged.Asset.ContentType,
		Body:        f,
	})
}

// recordAttempt appends to the posting history. A history write failure never
// affects the publish.
func (s *postService) recordAttempt(ctx context.Context, postID string, attempt int, err error) {
	if s.ph == nil {
		return
	}
	entry := &models.PostingHistory{
		PostID:    postID,
		Attempt:   attempt + 1,
		Succeeded: err == nil,
		CreatedAt: s.now(),
	}
	if err != nil {
		entry.ErrorMessage = failureMessage(err)
	}
	if _, err := s.ph.Create(ctx, entry); err != nil {
		slog.Warn("record posting history", "post_id", postID, "error", err)
	}
}

func failureMessage(err error) string {
	if msg := backend.Message(err); msg != "" {
		return msg
	}
	return defaultFailureMessage
}
