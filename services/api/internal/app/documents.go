package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"surfsense/internal/util"
	"surfsense/pkg/domain"
	"surfsense/services/api/internal/ingest"
)

// ExtensionDocument is one page captured by the browser extension.
type ExtensionDocument struct {
	Metadata    map[string]any `json:"metadata"`
	PageContent string         `json:"pageContent"`
}

// Upload is one file of an upload batch. Open is called once by the worker
// that processes the file.
type Upload struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// UploadResult is the per-file outcome of an upload.
type UploadResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ListDocuments lists the documents of an owned search space.
func (a *App) ListDocuments(token string, searchSpaceID int64) ([]domain.Document, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return nil, err
	}
	docs, err := a.store.ListDocumentsBySearchSpace(searchSpaceID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// DeleteDocuments removes documents and their index entries. The returned
// message describes what happened.
func (a *App) DeleteDocuments(ctx context.Context, token string, searchSpaceID int64, ids []int64) (string, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return "", err
	}
	return a.index.DeleteDocuments(ctx, searchSpaceID, ids)
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// browsingEvent renders a captured page in the text form indexed for webpages.
func browsingEvent(d ExtensionDocument) string {
	var b strings.Builder
	b.WriteString("USER BROWSING SESSION EVENT: \n")
	b.WriteString("=======================================METADATA==================================== \n")
	fmt.Fprintf(&b, "User Browsing Session ID : %s \n", metaString(d.Metadata, "BrowsingSessionId"))
	fmt.Fprintf(&b, "User Visited website with url : %s \n", metaString(d.Metadata, "VisitedWebPageURL"))
	fmt.Fprintf(&b, "This visited website url had title : %s \n", metaString(d.Metadata, "VisitedWebPageTitle"))
	fmt.Fprintf(&b, "User Visited this website from referring url : %s \n", metaString(d.Metadata, "VisitedWebPageReffererURL"))
	fmt.Fprintf(&b, "User Visited this website url at this Date and Time : %s \n", metaString(d.Metadata, "VisitedWebPageDateWithTimeInISOString"))
	fmt.Fprintf(&b, "User Visited this website for : %s milliseconds. \n", metaString(d.Metadata, "VisitedWebPageVisitDurationInMilliseconds"))
	b.WriteString("===================================================================================== \n")
	fmt.Fprintf(&b, "Webpage Content of the visited webpage url in markdown format : \n\n%s\n\n", d.PageContent)
	b.WriteString("===================================================================================== \n")
	return b.String()
}

// SaveExtensionDocuments indexes pages captured by the browser extension.
func (a *App) SaveExtensionDocuments(ctx context.Context, token string, searchSpaceID int64, docs []ExtensionDocument) error {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return err
	}
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]string, len(d.Metadata))
		for k := range d.Metadata {
			meta[k] = metaString(d.Metadata, k)
		}
		out = append(out, domain.Document{
			Title:       metaString(d.Metadata, "VisitedWebPageTitle"),
			PageContent: browsingEvent(d),
			Metadata:    meta,
		})
	}
	if _, err := a.index.EncodeDocuments(ctx, searchSpaceID, domain.DocumentWebpage, out); err != nil {
		return err
	}
	return nil
}

// UploadFiles loads and indexes files into an owned search space. Files are
// processed concurrently; results keep the input order.
func (a *App) UploadFiles(ctx context.Context, token string, searchSpaceID int64, files []Upload) ([]UploadResult, error) {
	if _, _, err := a.OwnedSearchSpace(token, searchSpaceID); err != nil {
		return nil, err
	}
	results := make([]UploadResult, len(files))
	var g errgroup.Group
	g.SetLimit(a.uploadConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			results[i] = a.processUpload(ctx, searchSpaceID, f)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// UploadFile processes a single file for a search space whose ownership was
// already checked.
func (a *App) UploadFile(ctx context.Context, searchSpaceID int64, f Upload) UploadResult {
	return a.processUpload(ctx, searchSpaceID, f)
}

func (a *App) processUpload(ctx context.Context, searchSpaceID int64, f Upload) UploadResult {
	res := UploadResult{Filename: f.Filename}
	if err := a.ingestFile(ctx, searchSpaceID, f); err != nil {
		util.LoggerFromContext(ctx).Warn("upload_failed", "filename", f.Filename, "search_space_id", searchSpaceID, "err", err)
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	res.Status = "success"
	res.Message = "Successfully processed and indexed " + f.Filename
	return res
}

func (a *App) ingestFile(ctx context.Context, searchSpaceID int64, f Upload) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "surfsense-upload-*"+strings.ToLower(filepath.Ext(f.Filename)))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	docs, err := ingest.Load(tmp.Name(), f.Filename, f.ContentType)
	if err != nil {
		return err
	}
	_, err = a.index.EncodeDocuments(ctx, searchSpaceID, domain.DocumentOther, docs)
	return err
}
