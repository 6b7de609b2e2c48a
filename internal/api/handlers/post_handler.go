package handlers

import (
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var in transfer.PostCreation
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	var scheduledAt *time.Time
	if strings.TrimSpace(in.ScheduledAt) != "" {
		at, err := time.Parse(time.RFC3339, in.ScheduledAt)
		if err != nil {
			return sendError(c, &service.ValidationError{Field: "scheduled_at", Reason: "must be an RFC 3339 timestamp"})
		}
		scheduledAt = &at
	}

	post, err := h.s.Create(c.Context(), in.Content, in.MediaRef, scheduledAt)
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context())
	if err != nil {
		return sendError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.s.Get(c.Context(), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) PostHistory(c *fiber.Ctx) error {
	history, err := h.s.History(c.Context(), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	if history == nil {
		history = []*models.PostingHistory{}
	}

	return c.Status(fiber.StatusOK).JSON(history)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Remove(c.Context(), c.Params("id")); err != nil {
		return sendError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// PublishPost answers 200 for both outcomes of an attempted publish; the post's
// status says which one happened.
func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	post, err := h.s.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(publishResult(post))
}

func (h *PostHandler) UploadMedia(c *fiber.Ctx) error {
	fh, err := formFile(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}
	if fh == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file selected",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return sendError(c, err)
	}
	defer f.Close()

	staged, err := h.s.StageMedia(media.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: fh.Size, Reader: f})
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(transfer.StagedMedia{
		Kind:        staged.Asset.Kind,
		ContentType: staged.Asset.ContentType,
		SizeBytes:   staged.Asset.SizeBytes,
		FileName:    staged.Asset.FileName,
		StagedRef:   staged.Asset.StagedRef,
		PreviewURL:  staged.PreviewURL,
	})
}

func (h *PostHandler) PublishDirect(c *fiber.Ctx) error {
	fh, err := formFile(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	var file *media.File
	if fh != nil {
		f, err := fh.Open()
		if err != nil {
			return sendError(c, err)
		}
		defer f.Close()
		file = &media.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: fh.Size, Reader: f}
	}

	post, err := h.s.PublishDirect(c.Context(), c.FormValue("content"), file)
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(publishResult(post))
}

// formFile returns the optional "file" part of a multipart request.
func formFile(c *fiber.Ctx) (*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	files := form.File["file"]
	if len(files) == 0 {
		return nil, nil
	}
	return files[0], nil
}

func publishResult(post *models.Post) transfer.PublishResult {
	return transfer.PublishResult{
		Success: post.Status == models.PostStatusPosted,
		Post:    post,
		Error:   post.ErrorMessage,
	}
}
