package index

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"surfsense/pkg/domain"
	"surfsense/pkg/store"
)

func newTestIndexer(t *testing.T) (*Indexer, *store.MemoryStore, *BleveIndex) {
	t.Helper()
	idx, err := OpenBleveIndex(filepath.Join(t.TempDir(), "chunks.bleve"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	st := store.NewMemoryStore()
	return New(st, idx), st, idx
}

func TestEncodeAndSearchScopedToSearchSpace(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	ctx := context.Background()

	saved, err := ix.EncodeDocuments(ctx, 1, domain.DocumentOther, []domain.Document{
		{Title: "gophers", PageContent: "Gophers dig tunnels in the meadow."},
		{Title: "otters", PageContent: "Otters float on their backs."},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == 0 || saved[0].FileType != domain.DocumentOther {
		t.Fatalf("unexpected saved docs: %+v", saved)
	}
	if _, err := ix.EncodeDocuments(ctx, 2, domain.DocumentWebpage, []domain.Document{
		{Title: "other space", PageContent: "Gophers live here too."},
	}); err != nil {
		t.Fatalf("encode other space: %v", err)
	}

	hits, err := ix.Search(ctx, 1, "gophers tunnels", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit in space 1, got %d", len(hits))
	}
	if hits[0].DocumentID != saved[0].ID || !strings.Contains(hits[0].Content, "tunnels") {
		t.Fatalf("unexpected hit: %+v", hits[0])
	}
	if docs, _ := st.ListDocumentsBySearchSpace(1); len(docs) != 2 {
		t.Fatalf("expected 2 stored docs, got %d", len(docs))
	}
}

func TestLongDocumentsAreChunked(t *testing.T) {
	ix, _, idx := newTestIndexer(t)
	long := strings.Repeat("searchable words fill this paragraph. ", 100)
	if _, err := ix.EncodeDocuments(context.Background(), 1, domain.DocumentOther, []domain.Document{{Title: "long", PageContent: long}}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	n, err := idx.count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected multiple chunks, got %d", n)
	}
}

func TestDeleteDocumentsRemovesRowsAndChunks(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	ctx := context.Background()
	saved, _ := ix.EncodeDocuments(ctx, 1, domain.DocumentOther, []domain.Document{
		{Title: "a", PageContent: "alpha particles"},
		{Title: "b", PageContent: "beta particles"},
	})

	msg, err := ix.DeleteDocuments(ctx, 1, []int64{saved[0].ID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if msg != "Documents Deleted" {
		t.Fatalf("message = %q", msg)
	}
	hits, _ := ix.Search(ctx, 1, "particles", 10)
	if len(hits) != 1 || hits[0].DocumentID != saved[1].ID {
		t.Fatalf("unexpected hits after delete: %+v", hits)
	}
	if docs, _ := st.ListDocumentsBySearchSpace(1); len(docs) != 1 {
		t.Fatalf("expected 1 stored doc, got %d", len(docs))
	}

	msg, err = ix.DeleteDocuments(ctx, 2, []int64{saved[1].ID})
	if err != nil {
		t.Fatalf("delete from other space: %v", err)
	}
	if msg != "No matching documents found" {
		t.Fatalf("message = %q", msg)
	}
	if hits, _ := ix.Search(ctx, 1, "particles", 10); len(hits) != 1 {
		t.Fatalf("document of another space must not be removed")
	}
}

func TestDropSearchSpace(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	ctx := context.Background()
	_, _ = ix.EncodeDocuments(ctx, 1, domain.DocumentOther, []domain.Document{{Title: "a", PageContent: "shared term"}})
	_, _ = ix.EncodeDocuments(ctx, 2, domain.DocumentOther, []domain.Document{{Title: "b", PageContent: "shared term"}})
	if err := ix.DropSearchSpace(ctx, 1); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if hits, _ := ix.Search(ctx, 1, "shared", 10); len(hits) != 0 {
		t.Fatalf("expected no hits in dropped space")
	}
	if hits, _ := ix.Search(ctx, 2, "shared", 10); len(hits) != 1 {
		t.Fatalf("other space must keep its chunks")
	}
}
