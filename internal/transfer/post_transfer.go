package transfer

type PostCreation struct {
	Content     string `json:"content"`
	MediaRef    string `json:"media_ref"`
	ScheduledAt string `json:"scheduled_at"`
}

type PublishResult struct {
	Success bool   `json:"success"`
	Post    any    `json:"post"`
	Error   string `json:"error,omitempty"`
}

type StagedMedia struct {
	Kind        string `json:"kind"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	FileName    string `json:"file_name"`
	StagedRef   string `json:"staged_ref"`
	PreviewURL  string `json:"preview_url"`
}
