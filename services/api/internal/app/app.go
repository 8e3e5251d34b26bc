package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"surfsense/pkg/auth"
	"surfsense/pkg/domain"
	"surfsense/pkg/store"
	"surfsense/services/api/internal/index"
	"surfsense/services/api/internal/podcast"
)

// Config wires the dependencies of App.
type Config struct {
	Store             store.Store
	Sessions          store.SessionStore
	APISecretKey      string
	Index             *index.Indexer
	Podcasts          *podcast.Service
	UploadConcurrency int
}

// App is the core application service. Every operation that takes a token
// resolves the user first and checks search space ownership before touching
// children.
type App struct {
	store             store.Store
	sessions          store.SessionStore
	apiSecretKey      string
	index             *index.Indexer
	podcasts          *podcast.Service
	uploadConcurrency int
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if strings.TrimSpace(cfg.APISecretKey) == "" {
		return nil, fmt.Errorf("api secret key required")
	}
	if cfg.Index == nil || cfg.Podcasts == nil {
		return nil, fmt.Errorf("index and podcast service required")
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 4
	}
	return &App{
		store:             cfg.Store,
		sessions:          cfg.Sessions,
		apiSecretKey:      cfg.APISecretKey,
		index:             cfg.Index,
		podcasts:          cfg.Podcasts,
		uploadConcurrency: cfg.UploadConcurrency,
	}, nil
}

// Register creates a user when apiSecretKey matches the configured secret.
func (a *App) Register(username, password, apiSecretKey string) (domain.User, error) {
	if apiSecretKey != a.apiSecretKey {
		return domain.User{}, ErrUnauthorized
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrCredentialsRequired
	}
	if _, found, err := a.store.GetUserByUsername(username); err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	} else if found {
		return domain.User{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Username:     username,
		Email:        username,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.User{}, ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks credentials and issues an access token.
func (a *App) Login(username, password string) (string, error) {
	user, found, err := a.store.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return "", ErrBadCredentials
	}
	token, err := a.sessions.NewSession(user.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// VerifyToken checks signature, expiry and subject of token.
func (a *App) VerifyToken(token string) (string, error) {
	subject, ok, err := a.sessions.GetSubjectByToken(token)
	if errors.Is(err, store.ErrTokenInvalid) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if !ok || subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// UserFromToken resolves the user a token was issued to.
func (a *App) UserFromToken(token string) (domain.User, error) {
	subject, err := a.VerifyToken(token)
	if err != nil {
		return domain.User{}, err
	}
	user, found, err := a.store.GetUserByUsername(subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// Logout revokes token until it expires.
func (a *App) Logout(token string) error {
	if _, err := a.VerifyToken(token); err != nil {
		return err
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// OwnedSearchSpace resolves the token's user and the search space, which must
// belong to that user.
func (a *App) OwnedSearchSpace(token string, searchSpaceID int64) (domain.User, domain.SearchSpace, error) {
	user, err := a.UserFromToken(token)
	if err != nil {
		return domain.User{}, domain.SearchSpace{}, err
	}
	space, err := a.ownedBy(user, searchSpaceID)
	return user, space, err
}

func (a *App) ownedBy(user domain.User, searchSpaceID int64) (domain.SearchSpace, error) {
	space, found, err := a.store.GetSearchSpace(searchSpaceID)
	if err != nil {
		return domain.SearchSpace{}, fmt.Errorf("get search space: %w", err)
	}
	if !found || space.UserID != user.ID {
		return domain.SearchSpace{}, ErrSearchSpaceNotFound
	}
	return space, nil
}

// Search queries the search space index.
func (a *App) Search(ctx context.Context, searchSpaceID int64, query string, limit int) ([]domain.SearchHit, error) {
	return a.index.Search(ctx, searchSpaceID, query, limit)
}
