// Package index stores documents and keeps the per search space keyword
// index in step with the document table.
package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/tmc/langchaingo/textsplitter"

	"surfsense/internal/metrics"
	"surfsense/pkg/domain"
	"surfsense/pkg/store"
)

const (
	chunkSize    = 1000
	chunkOverlap = 100
)

// Indexer persists documents and their chunks.
type Indexer struct {
	store    store.Store
	bleve    *BleveIndex
	splitter textsplitter.TextSplitter
}

// New builds an Indexer on an opened index.
func New(st store.Store, idx *BleveIndex) *Indexer {
	return &Indexer{
		store: st,
		bleve: idx,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

// EncodeDocuments stores docs in the search space and indexes their chunks.
func (ix *Indexer) EncodeDocuments(ctx context.Context, searchSpaceID int64, fileType domain.DocumentType, docs []domain.Document) ([]domain.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	for i := range docs {
		docs[i].SearchSpaceID = searchSpaceID
		docs[i].FileType = fileType
	}
	saved, err := ix.store.CreateDocuments(docs)
	if err != nil {
		return nil, fmt.Errorf("save documents: %w", err)
	}
	chunks := make(map[string]chunk)
	for _, d := range saved {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		parts, err := ix.splitter.SplitText(d.PageContent)
		if err != nil {
			return saved, fmt.Errorf("split document %d: %w", d.ID, err)
		}
		docID := strconv.FormatInt(d.ID, 10)
		for n, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks[fmt.Sprintf("%s:%d", docID, n)] = chunk{
				DocumentID:    docID,
				SearchSpaceID: strconv.FormatInt(searchSpaceID, 10),
				Title:         d.Title,
				Content:       part,
				URL:           documentURL(d),
			}
		}
	}
	if err := ix.bleve.put(chunks); err != nil {
		return saved, err
	}
	metrics.ChunksIndexed(len(chunks))
	return saved, nil
}

// DeleteDocuments removes documents of the search space and their chunks.
func (ix *Indexer) DeleteDocuments(ctx context.Context, searchSpaceID int64, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "No documents to delete", nil
	}
	n, err := ix.store.DeleteDocuments(searchSpaceID, ids)
	if err != nil {
		return "", fmt.Errorf("delete documents: %w", err)
	}
	docQueries := make([]blevequery.Query, 0, len(ids))
	for _, id := range ids {
		q := bleve.NewTermQuery(strconv.FormatInt(id, 10))
		q.SetField("document_id")
		docQueries = append(docQueries, q)
	}
	q := bleve.NewConjunctionQuery(spaceQuery(searchSpaceID), bleve.NewDisjunctionQuery(docQueries...))
	if _, err := ix.bleve.deleteWhere(q); err != nil {
		return "", err
	}
	if n == 0 {
		return "No matching documents found", nil
	}
	return "Documents Deleted", nil
}

// DropSearchSpace removes every chunk of the search space.
func (ix *Indexer) DropSearchSpace(ctx context.Context, searchSpaceID int64) error {
	_, err := ix.bleve.deleteWhere(spaceQuery(searchSpaceID))
	return err
}

// Search returns the best matching chunks of the search space.
func (ix *Indexer) Search(ctx context.Context, searchSpaceID int64, query string, limit int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	hits, err := ix.bleve.search(searchSpaceID, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		sh := domain.SearchHit{
			DocumentID: h.DocumentID,
			Title:      h.Title,
			Content:    h.Content,
			Score:      h.Score,
		}
		if h.URL != "" {
			sh.Metadata = map[string]string{"url": h.URL}
		}
		out = append(out, sh)
	}
	return out, nil
}

func documentURL(d domain.Document) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata["VisitedWebPageURL"]
}
