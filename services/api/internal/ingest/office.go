package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
)

// loadXLSX returns one section per sheet with tab separated rows.
func loadXLSX(path string) ([]section, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	var out []section
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var buf strings.Builder
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
		out = append(out, section{Text: buf.String(), Metadata: map[string]string{"sheet": sheet}})
	}
	return out, nil
}

var docxText = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>|</w:p>`)

// loadDOCX reads the <w:t> runs of word/document.xml. Paragraph ends become newlines.
func loadDOCX(path string) ([]section, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		var b strings.Builder
		for _, m := range docxText.FindAllStringSubmatch(string(data), -1) {
			if m[0] == "</w:p>" {
				b.WriteByte('\n')
				continue
			}
			b.WriteString(html.UnescapeString(m[1]))
		}
		return []section{{Text: b.String()}}, nil
	}
	return nil, fmt.Errorf("docx: word/document.xml not found")
}

// loadCat handles odt and rtf.
func loadCat(path string) ([]section, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return []section{{Text: text}}, nil
}
