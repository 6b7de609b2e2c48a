package media

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrUnsupportedType = fmt.Errorf("%w: unsupported media type", models.ErrValidation)
	ErrTooLarge        = fmt.Errorf("%w: media too large", models.ErrValidation)
	ErrEmptyFile       = fmt.Errorf("%w: media file is empty", models.ErrValidation)
	ErrAlreadyAttached = fmt.Errorf("%w: media already attached to a post", models.ErrValidation)
	ErrNotStaged       = errors.New("media not staged")
)

// TooLargeError reports the limit that was exceeded.
type TooLargeError struct {
	Kind  string
	Limit int64
	Size  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s too large: %s exceeds the %s limit", e.Kind, formatBytes(e.Size), formatBytes(e.Limit))
}

func (e *TooLargeError) Unwrap() error {
	return ErrTooLarge
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
