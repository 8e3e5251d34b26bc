package server

import (
	"io"
	"net/http"
	"strings"

	"surfsense/pkg/domain"
	"surfsense/services/api/internal/podcast"
)

type createPodcastRequest struct {
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content" validate:"required"`
	WordCount int    `json:"word_count" validate:"gte=0"`
}

// legacyCreatePodcastRequest is the body of the token-in-path create route.
type legacyCreatePodcastRequest struct {
	Title          string `json:"title" validate:"required"`
	PodcastContent string `json:"podcast_content" validate:"required"`
	WordCount      int    `json:"wordcount" validate:"gte=0"`
}

type updatePodcastRequest struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	Status      *string `json:"status"`
	IsCompleted *bool   `json:"is_completed"`
}

func (s *Server) handleCreatePodcast(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	var req createPodcastRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p, err := s.app.CreatePodcast(r.Context(), token, id, podcast.CreateInput{
		Title:     req.Title,
		Content:   req.Content,
		WordCount: req.WordCount,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleLegacyCreatePodcast(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	var req legacyCreatePodcastRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p, err := s.app.CreatePodcast(r.Context(), token, id, podcast.CreateInput{
		Title:     req.Title,
		Content:   req.PodcastContent,
		WordCount: req.WordCount,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Podcast created successfully", "podcast_id": p.ID})
}

func (s *Server) handleListPodcasts(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	out, err := s.app.ListPodcasts(token, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPodcast(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	podcastID, ok := pathID(w, r, "podcastID")
	if !ok {
		return
	}
	p, err := s.app.GetPodcast(token, id, podcastID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePodcast(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	podcastID, ok := pathID(w, r, "podcastID")
	if !ok {
		return
	}
	var req updatePodcastRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	update := domain.PodcastUpdate{
		Title:       req.Title,
		Content:     req.Content,
		IsCompleted: req.IsCompleted,
	}
	if req.Status != nil {
		st := domain.PodcastStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		update.Status = &st
	}
	p, err := s.app.UpdatePodcast(token, id, podcastID, update)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePodcast(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	podcastID, ok := pathID(w, r, "podcastID")
	if !ok {
		return
	}
	if err := s.app.DeletePodcast(r.Context(), token, id, podcastID); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Podcast deleted successfully"})
}

func (s *Server) handleDownloadPodcast(w http.ResponseWriter, r *http.Request, token string) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	podcastID, ok := pathID(w, r, "podcastID")
	if !ok {
		return
	}
	rc, p, err := s.app.OpenPodcast(r.Context(), token, id, podcastID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", "attachment; filename="+attachmentName(p.Title)+".mp3")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func attachmentName(title string) string {
	title = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == '"' || r == ';' {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if title == "" {
		return "podcast"
	}
	return title
}
