package domain

import (
	"encoding/json"
	"time"
)

type PodcastStatus string

const (
	PodcastPending    PodcastStatus = "pending"
	PodcastProcessing PodcastStatus = "processing"
	PodcastCompleted  PodcastStatus = "completed"
	PodcastFailed     PodcastStatus = "failed"
)

// Valid reports whether s is one of the known podcast states.
func (s PodcastStatus) Valid() bool {
	switch s {
	case PodcastPending, PodcastProcessing, PodcastCompleted, PodcastFailed:
		return true
	}
	return false
}

type DocumentType string

const (
	DocumentWebpage DocumentType = "WEBPAGE"
	DocumentOther   DocumentType = "OTHER"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SearchSpace struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chat keeps the client-supplied message list verbatim.
type Chat struct {
	ID            int64           `json:"id"`
	SearchSpaceID int64           `json:"search_space_id"`
	Type          string          `json:"type"`
	Title         string          `json:"title"`
	ChatsList     json.RawMessage `json:"chats_list"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Document struct {
	ID            int64             `json:"id"`
	SearchSpaceID int64             `json:"search_space_id"`
	FileType      DocumentType      `json:"file_type"`
	Title         string            `json:"title"`
	PageContent   string            `json:"page_content"`
	Metadata      map[string]string `json:"document_metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}

type Podcast struct {
	ID             int64         `json:"id"`
	SearchSpaceID  int64         `json:"search_space_id"`
	Title          string        `json:"title"`
	PodcastContent string        `json:"podcast_content"`
	WordCount      int           `json:"word_count"`
	FileLocation   *string       `json:"file_location"`
	Status         PodcastStatus `json:"status"`
	IsCompleted    bool          `json:"is_completed"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// PodcastUpdate carries a partial update; nil fields are left unchanged.
type PodcastUpdate struct {
	Title       *string
	Content     *string
	Status      *PodcastStatus
	IsCompleted *bool
}

// SearchHit is one ranked passage returned by the search space index.
type SearchHit struct {
	DocumentID int64             `json:"document_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
