package models

import "time"

// PostingHistory is one publish attempt against the backend.
type PostingHistory struct {
	ID           int64     `db:"id" json:"id"`
	PostID       string    `db:"post_id" json:"post_id"`
	Attempt      int       `db:"attempt" json:"attempt"`
	Succeeded    bool      `db:"succeeded" json:"succeeded"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
