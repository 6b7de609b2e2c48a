package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteRejectedError means the backend answered but declined the request.
// Message is always populated.
type RemoteRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("backend rejected request (status %d): %s", e.StatusCode, e.Message)
}

// Transient reports whether the rejection reflects a server-side condition
// that a later attempt could clear.
func (e *RemoteRejectedError) Transient() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// UnreachableError means no response was obtained: DNS, refused connection,
// timeout, or a body that could not be read.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("backend unreachable during %s: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// IsRetryable is the retry gate for transport failures: unreachable errors and
// transient rejections are retried, deterministic rejections and everything
// else are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var unreachable *UnreachableError
	if errors.As(err, &unreachable) {
		return true
	}
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.Transient()
	}
	return false
}

// Message extracts the human-readable reason to record on a failed post.
func Message(err error) string {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	var unreachable *UnreachableError
	if errors.As(err, &unreachable) {
		return "backend unreachable: " + unreachable.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
