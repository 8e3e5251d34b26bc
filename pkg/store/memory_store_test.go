package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"surfsense/pkg/domain"
)

func TestMemoryStoreRejectsDuplicateUsername(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.CreateUser(domain.User{Username: "u1", Email: "u1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(domain.User{Username: "u1", Email: "u1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryStorePartialPodcastUpdate(t *testing.T) {
	s := NewMemoryStore()
	created, err := s.CreatePodcast(domain.Podcast{
		SearchSpaceID:  1,
		Title:          "T",
		PodcastContent: "C",
		WordCount:      500,
		Status:         domain.PodcastPending,
	})
	if err != nil {
		t.Fatalf("create podcast: %v", err)
	}
	title := "T2"
	updated, ok, err := s.UpdatePodcast(created.ID, domain.PodcastUpdate{Title: &title})
	if err != nil || !ok {
		t.Fatalf("update podcast ok=%v err=%v", ok, err)
	}
	if updated.Title != "T2" {
		t.Fatalf("title = %q", updated.Title)
	}
	if updated.PodcastContent != "C" || updated.Status != domain.PodcastPending || updated.IsCompleted || updated.WordCount != 500 {
		t.Fatalf("unexpected side effects: %+v", updated)
	}
}

func TestMemoryStoreDeleteSearchSpaceCascades(t *testing.T) {
	s := NewMemoryStore()
	space, _ := s.CreateSearchSpace(domain.SearchSpace{UserID: 1, Name: "S"})
	other, _ := s.CreateSearchSpace(domain.SearchSpace{UserID: 1, Name: "O"})
	_, _ = s.CreateChat(domain.Chat{SearchSpaceID: space.ID, ChatsList: json.RawMessage(`[]`)})
	_, _ = s.CreateDocuments([]domain.Document{{SearchSpaceID: space.ID}, {SearchSpaceID: other.ID}})
	_, _ = s.CreatePodcast(domain.Podcast{SearchSpaceID: space.ID})

	if err := s.DeleteSearchSpace(space.ID); err != nil {
		t.Fatalf("delete search space: %v", err)
	}
	if chats, _ := s.ListChatsBySearchSpace(space.ID); len(chats) != 0 {
		t.Fatalf("expected chats removed, got %d", len(chats))
	}
	if podcasts, _ := s.ListPodcastsBySearchSpace(space.ID); len(podcasts) != 0 {
		t.Fatalf("expected podcasts removed, got %d", len(podcasts))
	}
	if docs, _ := s.ListDocumentsBySearchSpace(other.ID); len(docs) != 1 {
		t.Fatalf("expected other search space untouched, got %d docs", len(docs))
	}
}

func TestMemoryStoreDeleteDocumentsScopedToSearchSpace(t *testing.T) {
	s := NewMemoryStore()
	docs, _ := s.CreateDocuments([]domain.Document{{SearchSpaceID: 1}, {SearchSpaceID: 2}})
	n, err := s.DeleteDocuments(1, []int64{docs[0].ID, docs[1].ID})
	if err != nil {
		t.Fatalf("delete documents: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if left, _ := s.ListDocumentsBySearchSpace(2); len(left) != 1 {
		t.Fatalf("document in other search space must survive")
	}
}

func TestMemoryStoreListPodcastsByStatus(t *testing.T) {
	s := NewMemoryStore()
	old := time.Now().Add(-time.Hour)
	stale, _ := s.CreatePodcast(domain.Podcast{Status: domain.PodcastProcessing, UpdatedAt: old})
	_, _ = s.CreatePodcast(domain.Podcast{Status: domain.PodcastProcessing, UpdatedAt: time.Now()})
	_, _ = s.CreatePodcast(domain.Podcast{Status: domain.PodcastPending, UpdatedAt: old})

	got, err := s.ListPodcastsByStatus(domain.PodcastProcessing, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(got) != 1 || got[0].ID != stale.ID {
		t.Fatalf("unexpected stale podcasts: %+v", got)
	}
}
