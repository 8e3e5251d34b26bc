package app

import (
	"context"
	"errors"
	"io"

	"surfsense/pkg/domain"
	"surfsense/services/api/internal/podcast"
)

func podcastError(err error) error {
	switch {
	case errors.Is(err, podcast.ErrNotFound):
		return ErrPodcastNotFound
	case errors.Is(err, podcast.ErrFileMissing):
		return ErrPodcastFileMissing
	case errors.Is(err, podcast.ErrInvalidStatus):
		return ErrInvalidPodcastState
	}
	return err
}

// CreatePodcast is the single creation path for both podcast routes.
func (a *App) CreatePodcast(ctx context.Context, token string, searchSpaceID int64, in podcast.CreateInput) (domain.Podcast, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return domain.Podcast{}, err
	}
	p, err := a.podcasts.Create(ctx, searchSpaceID, in)
	return p, podcastError(err)
}

func (a *App) ListPodcasts(token string, searchSpaceID int64) ([]domain.Podcast, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return nil, err
	}
	out, err := a.podcasts.List(searchSpaceID)
	return out, podcastError(err)
}

func (a *App) GetPodcast(token string, searchSpaceID, podcastID int64) (domain.Podcast, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return domain.Podcast{}, err
	}
	p, err := a.podcasts.Get(searchSpaceID, podcastID)
	return p, podcastError(err)
}

func (a *App) UpdatePodcast(token string, searchSpaceID, podcastID int64, update domain.PodcastUpdate) (domain.Podcast, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return domain.Podcast{}, err
	}
	p, err := a.podcasts.Update(searchSpaceID, podcastID, update)
	return p, podcastError(err)
}

func (a *App) DeletePodcast(ctx context.Context, token string, searchSpaceID, podcastID int64) error {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return err
	}
	return podcastError(a.podcasts.Delete(ctx, searchSpaceID, podcastID))
}

// OpenPodcast returns the audio stream and the podcast row. Callers close the reader.
func (a *App) OpenPodcast(ctx context.Context, token string, searchSpaceID, podcastID int64) (io.ReadCloser, domain.Podcast, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return nil, domain.Podcast{}, err
	}
	rc, p, err := a.podcasts.Open(ctx, searchSpaceID, podcastID)
	return rc, p, podcastError(err)
}
