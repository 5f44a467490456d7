package models

import "time"

// PostOptions is the single logical post fanned out to platforms. PostData
// is an open bag of platform-specific overrides (for example devto article
// fields) consulted only by handlers that declare support for it.
type PostOptions struct {
	Text         string         `json:"text"`
	MediaURL     string         `json:"media_url,omitempty"`
	MediaAltText string         `json:"media_alt_text,omitempty"`
	ProjectName  string         `json:"project_name,omitempty"`
	PostData     map[string]any `json:"post_data,omitempty"`
}

// PostResult is the uniform publish outcome. Success=true implies Result
// carries at least the platform's canonical post identifier; Success=false
// implies Error is a human-readable diagnostic and Result is empty.
type PostResult struct {
	Platform string            `json:"platform,omitempty"`
	Success  bool              `json:"success"`
	Result   map[string]string `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ScheduledPost is pure bookkeeping data: the publish engine contains no
// scheduler logic. Delivery is the queue worker's job.
type ScheduledPost struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Options     PostOptions `json:"options"`
	Platforms   []string    `json:"platforms,omitempty"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

const (
	ScheduledPostPending = "pending"
	ScheduledPostPosted  = "posted"
	ScheduledPostFailed  = "failed"
)
