// Package podcast owns the podcast lifecycle: creation, background
// generation, partial updates, deletion and download.
package podcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"surfsense/internal/metrics"
	"surfsense/internal/util"
	"surfsense/pkg/domain"
	"surfsense/pkg/storage"
	"surfsense/pkg/store"
)

// DefaultWordCount is used when a create request leaves word_count unset.
const DefaultWordCount = 500

var (
	ErrNotFound      = errors.New("podcast not found")
	ErrFileMissing   = errors.New("podcast file not found")
	ErrInvalidStatus = errors.New("invalid podcast status")
)

// CreateInput is the payload of a create request.
type CreateInput struct {
	Title     string
	Content   string
	WordCount int
}

// Service implements podcast operations scoped to a search space. Callers
// check search space ownership before calling in.
type Service struct {
	store   store.Store
	objects storage.ObjectStore
	synth   Synthesizer
	gate    StartGate

	wg sync.WaitGroup
}

// StartGate runs in the generation goroutine before the row leaves pending.
// A non-nil error marks the podcast failed without calling the synthesizer.
type StartGate func(ctx context.Context, podcastID int64) error

// Option configures a Service.
type Option func(*Service)

// WithStartGate holds each generation until gate returns.
func WithStartGate(gate StartGate) Option {
	return func(s *Service) { s.gate = gate }
}

// NewService builds a Service.
func NewService(st store.Store, objects storage.ObjectStore, synth Synthesizer, opts ...Option) *Service {
	s := &Service{store: st, objects: objects, synth: synth}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a pending podcast and starts its generation in the
// background. The returned podcast is the pending row.
func (s *Service) Create(ctx context.Context, searchSpaceID int64, in CreateInput) (domain.Podcast, error) {
	wordCount := in.WordCount
	if wordCount <= 0 {
		wordCount = DefaultWordCount
	}
	p, err := s.store.CreatePodcast(domain.Podcast{
		SearchSpaceID:  searchSpaceID,
		Title:          in.Title,
		PodcastContent: in.Content,
		WordCount:      wordCount,
		Status:         domain.PodcastPending,
		IsCompleted:    false,
	})
	if err != nil {
		return domain.Podcast{}, fmt.Errorf("create podcast: %w", err)
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.generate(bg, p.ID, in.Content, wordCount)
	}()
	return p, nil
}

func (s *Service) generate(ctx context.Context, id int64, content string, wordCount int) {
	log := util.LoggerFromContext(ctx).With("podcast_id", id)
	if s.gate != nil {
		if err := s.gate(ctx, id); err != nil {
			log.Error("podcast_generation_gate_failed", "err", err)
			if err := s.store.SetPodcastResult(id, domain.PodcastFailed, nil, false); err != nil {
				log.Error("podcast_mark_failed", "err", err)
			}
			metrics.PodcastGenerated(false)
			return
		}
	}
	processing := domain.PodcastProcessing
	if _, ok, err := s.store.UpdatePodcast(id, domain.PodcastUpdate{Status: &processing}); err != nil || !ok {
		log.Error("podcast_generation_start_failed", "err", err, "found", ok)
		return
	}
	start := time.Now()
	location, err := s.synth.Synthesize(ctx, content, wordCount)
	if err != nil {
		log.Error("podcast_generation_failed", "err", err)
		if err := s.store.SetPodcastResult(id, domain.PodcastFailed, nil, false); err != nil {
			log.Error("podcast_mark_failed", "err", err)
		}
		metrics.PodcastGenerated(false)
		return
	}
	if err := s.store.SetPodcastResult(id, domain.PodcastCompleted, &location, true); err != nil {
		log.Error("podcast_mark_completed", "err", err)
		return
	}
	metrics.PodcastGenerated(true)
	log.Info("podcast_generated", "file_location", location, "duration_ms", time.Since(start).Milliseconds())
}

// Wait blocks until every background generation started by Create returns.
func (s *Service) Wait() {
	s.wg.Wait()
}

// List returns the podcasts of a search space.
func (s *Service) List(searchSpaceID int64) ([]domain.Podcast, error) {
	out, err := s.store.ListPodcastsBySearchSpace(searchSpaceID)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	if out == nil {
		out = []domain.Podcast{}
	}
	return out, nil
}

// Get returns one podcast of the search space.
func (s *Service) Get(searchSpaceID, id int64) (domain.Podcast, error) {
	p, ok, err := s.store.GetPodcast(id)
	if err != nil {
		return domain.Podcast{}, fmt.Errorf("get podcast: %w", err)
	}
	if !ok || p.SearchSpaceID != searchSpaceID {
		return domain.Podcast{}, ErrNotFound
	}
	return p, nil
}

// Update applies the supplied fields only.
func (s *Service) Update(searchSpaceID, id int64, update domain.PodcastUpdate) (domain.Podcast, error) {
	if update.Status != nil && !update.Status.Valid() {
		return domain.Podcast{}, ErrInvalidStatus
	}
	if _, err := s.Get(searchSpaceID, id); err != nil {
		return domain.Podcast{}, err
	}
	p, ok, err := s.store.UpdatePodcast(id, update)
	if err != nil {
		return domain.Podcast{}, fmt.Errorf("update podcast: %w", err)
	}
	if !ok {
		return domain.Podcast{}, ErrNotFound
	}
	return p, nil
}

// Delete removes the generated file, best effort, and then the row.
func (s *Service) Delete(ctx context.Context, searchSpaceID, id int64) error {
	p, err := s.Get(searchSpaceID, id)
	if err != nil {
		return err
	}
	s.removeFile(ctx, p)
	if err := s.store.DeletePodcast(id); err != nil {
		return fmt.Errorf("delete podcast: %w", err)
	}
	return nil
}

// RemoveFiles deletes the audio of podcasts that are about to be dropped with
// their search space.
func (s *Service) RemoveFiles(ctx context.Context, searchSpaceID int64) {
	podcasts, err := s.store.ListPodcastsBySearchSpace(searchSpaceID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("list podcasts for cleanup", "search_space_id", searchSpaceID, "err", err)
		return
	}
	for _, p := range podcasts {
		s.removeFile(ctx, p)
	}
}

func (s *Service) removeFile(ctx context.Context, p domain.Podcast) {
	if p.FileLocation == nil || strings.TrimSpace(*p.FileLocation) == "" {
		return
	}
	if err := s.objects.Delete(ctx, *p.FileLocation); err != nil {
		util.LoggerFromContext(ctx).Error("podcast_file_delete_failed", "podcast_id", p.ID, "file_location", *p.FileLocation, "err", err)
		return
	}
	util.LoggerFromContext(ctx).Info("podcast_file_deleted", "podcast_id", p.ID, "file_location", *p.FileLocation)
}

// Open returns the audio of a podcast. Callers close the reader.
func (s *Service) Open(ctx context.Context, searchSpaceID, id int64) (io.ReadCloser, domain.Podcast, error) {
	p, err := s.Get(searchSpaceID, id)
	if err != nil {
		return nil, domain.Podcast{}, err
	}
	if p.FileLocation == nil || *p.FileLocation == "" {
		return nil, p, ErrFileMissing
	}
	rc, err := s.objects.Open(ctx, *p.FileLocation)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, p, ErrFileMissing
	}
	if err != nil {
		return nil, p, fmt.Errorf("open podcast file: %w", err)
	}
	return rc, p, nil
}

// SweepStale marks podcasts stuck in processing for longer than staleAfter
// as failed. It returns the number of rows changed.
func (s *Service) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	stale, err := s.store.ListPodcastsByStatus(domain.PodcastProcessing, time.Now().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("list stale podcasts: %w", err)
	}
	for _, p := range stale {
		if err := s.store.SetPodcastResult(p.ID, domain.PodcastFailed, nil, false); err != nil {
			return 0, fmt.Errorf("mark podcast %d failed: %w", p.ID, err)
		}
	}
	if len(stale) > 0 {
		slog.InfoContext(ctx, "stale_podcasts_failed", "count", len(stale), "stale_after", staleAfter.String())
	}
	return len(stale), nil
}
