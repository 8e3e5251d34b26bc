package store

import (
	"encoding/json"
	"errors"
	"time"

	"surfsense/pkg/domain"
)

// ErrConflict is returned when a unique field is already taken.
var ErrConflict = errors.New("store: conflict")

// Store defines persistence operations for users, search spaces and their children.
// Lookups return (value, found, err); a missing row is not an error.
type Store interface {
	// users
	CreateUser(domain.User) (domain.User, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id int64) (domain.User, bool, error)

	// search spaces
	CreateSearchSpace(domain.SearchSpace) (domain.SearchSpace, error)
	GetSearchSpace(id int64) (domain.SearchSpace, bool, error)
	ListSearchSpacesByUser(userID int64) ([]domain.SearchSpace, error)
	DeleteSearchSpace(id int64) error

	// chats
	CreateChat(domain.Chat) (domain.Chat, error)
	GetChat(id int64) (domain.Chat, bool, error)
	ListChatsBySearchSpace(searchSpaceID int64) ([]domain.Chat, error)
	UpdateChatList(id int64, chatsList json.RawMessage) error
	DeleteChat(id int64) error

	// documents
	CreateDocuments(docs []domain.Document) ([]domain.Document, error)
	ListDocumentsBySearchSpace(searchSpaceID int64) ([]domain.Document, error)
	DeleteDocuments(searchSpaceID int64, ids []int64) (int64, error)

	// podcasts
	CreatePodcast(domain.Podcast) (domain.Podcast, error)
	GetPodcast(id int64) (domain.Podcast, bool, error)
	ListPodcastsBySearchSpace(searchSpaceID int64) ([]domain.Podcast, error)
	ListPodcastsByStatus(status domain.PodcastStatus, updatedBefore time.Time) ([]domain.Podcast, error)
	UpdatePodcast(id int64, update domain.PodcastUpdate) (domain.Podcast, bool, error)
	SetPodcastResult(id int64, status domain.PodcastStatus, fileLocation *string, completed bool) error
	DeletePodcast(id int64) error
}

// SessionStore issues and resolves bearer tokens. The subject is the username.
type SessionStore interface {
	NewSession(subject string) (string, error)
	GetSubjectByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

var (
	_ Store        = (*GormStore)(nil)
	_ Store        = (*MemoryStore)(nil)
	_ SessionStore = (*JWTSessionStore)(nil)
	_ TokenRevoker = (*MemoryTokenRevoker)(nil)
	_ TokenRevoker = (*RedisTokenRevoker)(nil)
)
