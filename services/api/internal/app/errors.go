package app

import "errors"

// Messages of these errors are shown to clients as-is.
var (
	ErrUnauthorized        = errors.New("Unauthorized")
	ErrInvalidToken        = errors.New("Token is invalid or expired")
	ErrUserNotFound        = errors.New("User not found")
	ErrSearchSpaceNotFound = errors.New("Search space not found or does not belong to the user")
	ErrChatNotFound        = errors.New("Chat not found or does not belong to the searchspace owned by the user")
	ErrPodcastNotFound     = errors.New("Podcast not found")
	ErrPodcastFileMissing  = errors.New("Podcast file not found")
	ErrEmailTaken          = errors.New("Email already registered")
	ErrBadCredentials      = errors.New("Incorrect username or password")

	ErrCredentialsRequired = errors.New("username and password required")
	ErrInvalidPodcastState = errors.New("status must be one of pending, processing, completed, failed")
	ErrInvalidChatList     = errors.New("chats_list must be a JSON array or string")
)
