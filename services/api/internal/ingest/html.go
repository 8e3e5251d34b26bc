package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

func loadHTML(path string) ([]section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()
	text, title, err := htmlText(f)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{}
	if title != "" {
		meta["title"] = title
	}
	return []section{{Text: text, Metadata: meta}}, nil
}

// loadEPUB returns one section per xhtml chapter.
func loadEPUB(path string) ([]section, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer reader.Close()
	var out []section
	for _, file := range reader.File {
		name := strings.ToLower(file.Name)
		if !(strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm")) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("read epub file: %w", err)
		}
		text, _, err := htmlText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse epub html: %w", err)
		}
		out = append(out, section{Text: text, Metadata: map[string]string{"section": filepath.Base(file.Name)}})
	}
	return out, nil
}

func htmlText(r io.Reader) (text, title string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if node.FirstChild != nil && title == "" {
					title = strings.TrimSpace(node.FirstChild.Data)
				}
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "tr":
				buf.WriteString("\n")
			}
		}
	}
	walk(doc)
	return buf.String(), title, nil
}
