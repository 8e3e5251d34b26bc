// Package ingest turns uploaded files into documents ready for indexing.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"surfsense/pkg/domain"
)

// ErrUnsupportedType is returned for images and unknown binary formats.
var ErrUnsupportedType = errors.New("unsupported file type")

var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".csv": {}, ".tsv": {}, ".json": {},
	".xml": {}, ".yaml": {}, ".yml": {}, ".log": {}, ".rst": {}, ".org": {},
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".java": {}, ".c": {}, ".h": {},
	".cpp": {}, ".rs": {}, ".sh": {}, ".sql": {},
}

type loaderFunc func(path string) ([]section, error)

// section is one extracted piece of a file, such as a page or a sheet.
type section struct {
	Text     string
	Metadata map[string]string
}

// Load extracts the documents of the file stored at path. filename and
// contentType come from the upload and select the loader.
func Load(path, filename, contentType string) ([]domain.Document, error) {
	load, err := loaderFor(filename, contentType)
	if err != nil {
		return nil, err
	}
	sections, err := load(path)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(sections))
	for _, s := range sections {
		text := normalizeText(s.Text)
		if text == "" {
			continue
		}
		meta := map[string]string{"filename": filename}
		for k, v := range s.Metadata {
			meta[k] = v
		}
		docs = append(docs, domain.Document{
			Title:       filename,
			PageContent: text,
			Metadata:    meta,
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", filename)
	}
	return docs, nil
}

func loaderFor(filename, contentType string) (loaderFunc, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") {
		return nil, ErrUnsupportedType
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf" || ct == "application/pdf":
		return loadPDF, nil
	case ext == ".epub" || ct == "application/epub+zip":
		return loadEPUB, nil
	case ext == ".html" || ext == ".htm" || ct == "text/html":
		return loadHTML, nil
	case ext == ".xlsx" || ct == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return loadXLSX, nil
	case ext == ".docx" || ct == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return loadDOCX, nil
	case ext == ".odt" || ext == ".rtf" || ct == "application/rtf" || ct == "application/vnd.oasis.opendocument.text":
		return loadCat, nil
	}
	if _, ok := textExtensions[ext]; ok || strings.HasPrefix(ct, "text/") {
		return loadText, nil
	}
	return nil, ErrUnsupportedType
}

func loadText(path string) ([]section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return []section{{Text: string(data)}}, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
