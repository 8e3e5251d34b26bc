package index

import (
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// chunk is the unit stored in the search index.
type chunk struct {
	DocumentID    string `json:"document_id"`
	SearchSpaceID string `json:"search_space_id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	URL           string `json:"url"`
}

// BleveIndex stores document chunks for all search spaces in one index.
// Queries are always filtered by search_space_id.
type BleveIndex struct {
	index bleve.Index
}

// OpenBleveIndex creates or opens a Bleve index at path.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		idx, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open bleve index: %w", openErr)
		}
		return &BleveIndex{index: idx}, nil
	}
	idx, err := bleve.New(path, chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

func chunkMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("title", text)

	kw := bleve.NewKeywordFieldMapping()
	kw.Store = true
	doc.AddFieldMappingsAt("document_id", kw)
	doc.AddFieldMappingsAt("search_space_id", kw)
	doc.AddFieldMappingsAt("url", kw)

	im.AddDocumentMapping("chunk", doc)
	im.DefaultType = "chunk"
	im.DefaultMapping = doc
	return im
}

func (b *BleveIndex) put(chunks map[string]chunk) error {
	batch := b.index.NewBatch()
	for id, c := range chunks {
		if err := batch.Index(id, c); err != nil {
			return fmt.Errorf("batch index %s: %w", id, err)
		}
	}
	return b.index.Batch(batch)
}

func spaceQuery(searchSpaceID int64) blevequery.Query {
	q := bleve.NewTermQuery(strconv.FormatInt(searchSpaceID, 10))
	q.SetField("search_space_id")
	return q
}

// deleteWhere removes every chunk matching q.
func (b *BleveIndex) deleteWhere(q blevequery.Query) (int, error) {
	deleted := 0
	for {
		req := bleve.NewSearchRequest(q)
		req.Size = 500
		res, err := b.index.Search(req)
		if err != nil {
			return deleted, fmt.Errorf("bleve search: %w", err)
		}
		if len(res.Hits) == 0 {
			return deleted, nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return deleted, fmt.Errorf("bleve delete: %w", err)
		}
		deleted += len(res.Hits)
	}
}

type hit struct {
	ID         string
	DocumentID int64
	Title      string
	Content    string
	URL        string
	Score      float64
}

func (b *BleveIndex) search(searchSpaceID int64, text string, limit int) ([]hit, error) {
	match := bleve.NewMatchQuery(text)
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(spaceQuery(searchSpaceID), match))
	req.Size = limit
	req.Fields = []string{"*"}
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	out := make([]hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		docID, _ := strconv.ParseInt(fieldString(h.Fields, "document_id"), 10, 64)
		out = append(out, hit{
			ID:         h.ID,
			DocumentID: docID,
			Title:      fieldString(h.Fields, "title"),
			Content:    fieldString(h.Fields, "content"),
			URL:        fieldString(h.Fields, "url"),
			Score:      h.Score,
		})
	}
	return out, nil
}

func (b *BleveIndex) count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
