// Package media validates and stages image and video files locally before a
// post is published. Staging never touches the network.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow/internal/models"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultMaxImageBytes int64 = 5 * 1024 * 1024
	DefaultMaxVideoBytes int64 = 512 * 1024 * 1024

	sniffLen = 262
)

var extByContentType = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
}

// File is an incoming upload. Size is the declared size and is checked before
// any bytes are read; the bytes actually read are checked again.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type Limits struct {
	MaxImageBytes int64
	MaxVideoBytes int64
}

func (l Limits) forKind(kind string) int64 {
	if kind == models.MediaKindVideo {
		return l.MaxVideoBytes
	}
	return l.MaxImageBytes
}

// Staged is a validated file held in the staging directory.
type Staged struct {
	Asset      models.MediaAsset
	PreviewURL string
	Path       string
}

type Coordinator struct {
	dir    string
	limits Limits

	mu      sync.RWMutex
	staged  map[string]*Staged
	claimed map[string]bool
}

func NewCoordinator(dir string, limits Limits) (*Coordinator, error) {
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = DefaultMaxImageBytes
	}
	if limits.MaxVideoBytes <= 0 {
		limits.MaxVideoBytes = DefaultMaxVideoBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Coordinator{
		dir:     dir,
		limits:  limits,
		staged:  make(map[string]*Staged),
		claimed: make(map[string]bool),
	}, nil
}

// Classify derives the media kind from a declared content type.
func Classify(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return models.MediaKindImage, nil
	case strings.HasPrefix(mediaType, "video/"):
		return models.MediaKindVideo, nil
	default:
		return "", fmt.Errorf("%w: %q, use image or video files", ErrUnsupportedType, contentType)
	}
}

// Stage validates the file and copies it into the staging directory.
func (c *Coordinator) Stage(file File) (*Staged, error) {
	kind, err := Classify(file.ContentType)
	if err != nil {
		return nil, err
	}

	limit := c.limits.forKind(kind)
	if file.Size > limit {
		return nil, &TooLargeError{Kind: kind, Limit: limit, Size: file.Size}
	}
	if file.Reader == nil {
		return nil, ErrEmptyFile
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read media: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrEmptyFile
	}

	sniffed, _ := filetype.Match(head)
	if err := checkSniffed(kind, file.ContentType, sniffed); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(c.dir, "stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var preview bytes.Buffer
	var w io.Writer = tmp
	if kind == models.MediaKindImage {
		w = io.MultiWriter(tmp, &preview)
	}

	// one byte past the limit is enough to know the file is too large
	rest := io.LimitReader(file.Reader, limit+1-int64(n))
	written, err := io.Copy(w, io.MultiReader(bytes.NewReader(head), rest))
	if err != nil {
		return nil, fmt.Errorf("write staging file: %w", err)
	}
	if written > limit {
		return nil, &TooLargeError{Kind: kind, Limit: limit, Size: written}
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close staging file: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	ref := id + "." + extension(file.ContentType, sniffed)
	path := filepath.Join(c.dir, ref)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("store staging file: %w", err)
	}
	tmp = nil

	staged := &Staged{
		Asset: models.MediaAsset{
			Kind:        kind,
			ContentType: file.ContentType,
			SizeBytes:   written,
			FileName:    file.Name,
			StagedRef:   ref,
		},
		Path: path,
	}
	if kind == models.MediaKindImage {
		staged.PreviewURL = "data:" + file.ContentType + ";base64," + base64.StdEncoding.EncodeToString(preview.Bytes())
	} else {
		staged.PreviewURL = "file://" + filepath.ToSlash(path)
	}

	c.mu.Lock()
	c.staged[ref] = staged
	c.mu.Unlock()

	slog.Info("media staged", "ref", ref, "kind", kind, "size", written)
	return staged, nil
}

// Lookup returns a file staged by this coordinator.
func (c *Coordinator) Lookup(ref string) (*Staged, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.staged[ref]
	return s, ok
}

// Claim attaches a staged file to a post. A file can be claimed once.
func (c *Coordinator) Claim(ref string) (*Staged, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.staged[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotStaged, ref)
	}
	if c.claimed[ref] {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAttached, ref)
	}
	c.claimed[ref] = true
	return s, nil
}

// Release undoes a Claim so the file can be attached again.
func (c *Coordinator) Release(ref string) {
	c.mu.Lock()
	delete(c.claimed, ref)
	c.mu.Unlock()
}

// Open returns the staged bytes for ref. Files staged before a restart remain
// readable because the ref is the file name.
func (c *Coordinator) Open(ref string) (io.ReadCloser, error) {
	path, err := c.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotStaged, ref)
		}
		return nil, err
	}
	return f, nil
}

// Discard deletes a staged file.
func (c *Coordinator) Discard(ref string) error {
	path, err := c.path(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.staged, ref)
	delete(c.claimed, ref)
	c.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *Coordinator) path(ref string) (string, error) {
	if ref == "" || filepath.Base(ref) != ref || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: invalid ref %q", ErrNotStaged, ref)
	}
	return filepath.Join(c.dir, ref), nil
}

// checkSniffed rejects files whose content is recognisably the other kind.
// Unrecognised content is accepted on the declared type.
func checkSniffed(kind, contentType string, sniffed types.Type) error {
	if sniffed == types.Unknown {
		return nil
	}
	actual := sniffed.MIME.Type
	if (actual == "image" || actual == "video") && actual != kind {
		return fmt.Errorf("%w: declared %s but content is %s", ErrUnsupportedType, contentType, sniffed.MIME.Value)
	}
	return nil
}

func extension(contentType string, sniffed types.Type) string {
	if sniffed != types.Unknown && sniffed.Extension != "" {
		return sniffed.Extension
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}
	if ext, ok := extByContentType[mediaType]; ok {
		return ext
	}
	return "bin"
}
