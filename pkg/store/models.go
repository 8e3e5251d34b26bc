package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"surfsense/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type SearchSpaceModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	UserID      int64     `gorm:"not null;index"`
	Name        string    `gorm:"not null;index"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
}

type ChatModel struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	SearchSpaceID int64          `gorm:"not null;index"`
	Type          string         `gorm:"not null"`
	Title         string         `gorm:"not null"`
	ChatsList     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
}

type DocumentModel struct {
	ID               int64          `gorm:"primaryKey;autoIncrement"`
	SearchSpaceID    int64          `gorm:"not null;index"`
	FileType         string         `gorm:"not null"`
	Title            string         `gorm:"not null"`
	PageContent      string         `gorm:"type:text;not null"`
	DocumentMetadata datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null;index"`
}

type PodcastModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	SearchSpaceID  int64     `gorm:"not null;index"`
	Title          string    `gorm:"not null"`
	PodcastContent string    `gorm:"type:text;not null"`
	WordCount      int       `gorm:"not null;default:500"`
	FileLocation   *string   `gorm:"type:text"`
	Status         string    `gorm:"not null;index"`
	IsCompleted    bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null;index"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func searchSpaceToModel(s domain.SearchSpace) SearchSpaceModel {
	return SearchSpaceModel{
		ID:          s.ID,
		UserID:      s.UserID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
	}
}

func searchSpaceFromModel(m SearchSpaceModel) domain.SearchSpace {
	return domain.SearchSpace{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func chatToModel(c domain.Chat) ChatModel {
	return ChatModel{
		ID:            c.ID,
		SearchSpaceID: c.SearchSpaceID,
		Type:          c.Type,
		Title:         c.Title,
		ChatsList:     datatypes.JSON(normalizeList(c.ChatsList)),
		CreatedAt:     c.CreatedAt,
	}
}

func chatFromModel(m ChatModel) domain.Chat {
	return domain.Chat{
		ID:            m.ID,
		SearchSpaceID: m.SearchSpaceID,
		Type:          m.Type,
		Title:         m.Title,
		ChatsList:     normalizeList(json.RawMessage(m.ChatsList)),
		CreatedAt:     m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	meta, _ := json.Marshal(d.Metadata)
	return DocumentModel{
		ID:               d.ID,
		SearchSpaceID:    d.SearchSpaceID,
		FileType:         string(d.FileType),
		Title:            d.Title,
		PageContent:      d.PageContent,
		DocumentMetadata: datatypes.JSON(meta),
		CreatedAt:        d.CreatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	meta := map[string]string{}
	if len(m.DocumentMetadata) > 0 {
		_ = json.Unmarshal(m.DocumentMetadata, &meta)
	}
	return domain.Document{
		ID:            m.ID,
		SearchSpaceID: m.SearchSpaceID,
		FileType:      domain.DocumentType(m.FileType),
		Title:         m.Title,
		PageContent:   m.PageContent,
		Metadata:      meta,
		CreatedAt:     m.CreatedAt,
	}
}

func podcastToModel(p domain.Podcast) PodcastModel {
	return PodcastModel{
		ID:             p.ID,
		SearchSpaceID:  p.SearchSpaceID,
		Title:          p.Title,
		PodcastContent: p.PodcastContent,
		WordCount:      p.WordCount,
		FileLocation:   p.FileLocation,
		Status:         string(p.Status),
		IsCompleted:    p.IsCompleted,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func podcastFromModel(m PodcastModel) domain.Podcast {
	return domain.Podcast{
		ID:             m.ID,
		SearchSpaceID:  m.SearchSpaceID,
		Title:          m.Title,
		PodcastContent: m.PodcastContent,
		WordCount:      m.WordCount,
		FileLocation:   m.FileLocation,
		Status:         domain.PodcastStatus(m.Status),
		IsCompleted:    m.IsCompleted,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func normalizeList(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("[]")
	}
	return raw
}
