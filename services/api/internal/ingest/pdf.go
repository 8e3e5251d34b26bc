package ingest

import (
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// loadPDF returns one section per page. Pages that fail to decode are skipped.
func loadPDF(path string) ([]section, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	var out []section
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out = append(out, section{Text: text, Metadata: map[string]string{"page": strconv.Itoa(i)}})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	return out, nil
}
