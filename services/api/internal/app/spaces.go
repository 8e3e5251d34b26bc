package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"surfsense/pkg/domain"
)

// CreateSearchSpace creates a search space owned by the token's user.
func (a *App) CreateSearchSpace(token, name, description string) (domain.SearchSpace, error) {
	user, err := a.UserFromToken(token)
	if err != nil {
		return domain.SearchSpace{}, err
	}
	space, err := a.store.CreateSearchSpace(domain.SearchSpace{
		UserID:      user.ID,
		Name:        strings.TrimSpace(name),
		Description: description,
	})
	if err != nil {
		return domain.SearchSpace{}, fmt.Errorf("create search space: %w", err)
	}
	return space, nil
}

// ListSearchSpaces lists the token user's search spaces.
func (a *App) ListSearchSpaces(token string) ([]domain.SearchSpace, error) {
	user, err := a.UserFromToken(token)
	if err != nil {
		return nil, err
	}
	spaces, err := a.store.ListSearchSpacesByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list search spaces: %w", err)
	}
	return spaces, nil
}

// GetSearchSpace returns one owned search space.
func (a *App) GetSearchSpace(token string, searchSpaceID int64) (domain.SearchSpace, error) {
	_, space, err := a.OwnedSearchSpace(token, searchSpaceID)
	return space, err
}

// DeleteSearchSpace removes the search space with its chats, documents,
// index entries, podcasts and podcast files.
func (a *App) DeleteSearchSpace(ctx context.Context, token string, searchSpaceID int64) error {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return err
	}
	a.podcasts.RemoveFiles(ctx, searchSpaceID)
	if err := a.index.DropSearchSpace(ctx, searchSpaceID); err != nil {
		return err
	}
	if err := a.store.DeleteSearchSpace(searchSpaceID); err != nil {
		return fmt.Errorf("delete search space: %w", err)
	}
	return nil
}

func normalizeChatList(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), nil
	}
	switch trimmed[0] {
	case '[', '"':
	default:
		return nil, ErrInvalidChatList
	}
	if !json.Valid(trimmed) {
		return nil, ErrInvalidChatList
	}
	return json.RawMessage(trimmed), nil
}

// CreateChat stores a chat in an owned search space.
func (a *App) CreateChat(token string, searchSpaceID int64, chatType, title string, chatsList json.RawMessage) (domain.Chat, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return domain.Chat{}, err
	}
	list, err := normalizeChatList(chatsList)
	if err != nil {
		return domain.Chat{}, err
	}
	chat, err := a.store.CreateChat(domain.Chat{
		SearchSpaceID: searchSpaceID,
		Type:          chatType,
		Title:         title,
		ChatsList:     list,
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (a *App) chatIn(searchSpaceID, chatID int64) (domain.Chat, error) {
	chat, found, err := a.store.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	if !found || chat.SearchSpaceID != searchSpaceID {
		return domain.Chat{}, ErrChatNotFound
	}
	return chat, nil
}

// GetChat returns one chat of an owned search space.
func (a *App) GetChat(token string, searchSpaceID, chatID int64) (domain.Chat, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return domain.Chat{}, err
	}
	return a.chatIn(searchSpaceID, chatID)
}

// ListChats lists the chats of an owned search space.
func (a *App) ListChats(token string, searchSpaceID int64) ([]domain.Chat, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return nil, err
	}
	chats, err := a.store.ListChatsBySearchSpace(searchSpaceID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// UpdateChat replaces the message list of a chat.
func (a *App) UpdateChat(token string, searchSpaceID, chatID int64, chatsList json.RawMessage) error {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return err
	}
	if _, err := a.chatIn(searchSpaceID, chatID); err != nil {
		return err
	}
	list, err := normalizeChatList(chatsList)
	if err != nil {
		return err
	}
	if err := a.store.UpdateChatList(chatID, list); err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	return nil
}

// DeleteChat removes a chat.
func (a *App) DeleteChat(token string, searchSpaceID, chatID int64) error {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return err
	}
	if _, err := a.chatIn(searchSpaceID, chatID); err != nil {
		return err
	}
	if err := a.store.DeleteChat(chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}
