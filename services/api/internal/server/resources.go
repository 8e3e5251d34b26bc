package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"surfsense/pkg/domain"
	"surfsense/services/api/internal/app"
)

type createSearchSpaceRequest struct {
	Token       string `json:"token" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type createChatRequest struct {
	Token     string          `json:"token" validate:"required"`
	Type      string          `json:"type" validate:"required"`
	Title     string          `json:"title"`
	ChatsList json.RawMessage `json:"chats_list"`
}

type updateChatRequest struct {
	Token     string          `json:"token" validate:"required"`
	ChatID    int64           `json:"chatid" validate:"required,gt=0"`
	ChatsList json.RawMessage `json:"chats_list"`
}

type saveDocumentsRequest struct {
	Token         string                  `json:"token" validate:"required"`
	SearchSpaceID int64                   `json:"search_space_id" validate:"required,gt=0"`
	Documents     []app.ExtensionDocument `json:"documents"`
}

type deleteDocumentsRequest struct {
	Token       string  `json:"token" validate:"required"`
	IDsToDelete []int64 `json:"ids_to_delete"`
}

type uploadResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Details []app.UploadResult `json:"details"`
}

func (s *Server) handleCreateSearchSpace(w http.ResponseWriter, r *http.Request) {
	var req createSearchSpaceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	space, err := s.app.CreateSearchSpace(req.Token, req.Name, req.Description)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (s *Server) handleListSearchSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.app.ListSearchSpaces(chi.URLParam(r, "token"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if spaces == nil {
		spaces = []domain.SearchSpace{}
	}
	writeJSON(w, http.StatusOK, spaces)
}

func (s *Server) handleGetSearchSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	space, err := s.app.GetSearchSpace(chi.URLParam(r, "token"), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (s *Server) handleDeleteSearchSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	if err := s.app.DeleteSearchSpace(r.Context(), chi.URLParam(r, "token"), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Search space deleted"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	docs, err := s.app.ListDocuments(chi.URLParam(r, "token"), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleSaveDocuments(w http.ResponseWriter, r *http.Request) {
	var req saveDocumentsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.SaveExtensionDocuments(r.Context(), req.Token, req.SearchSpaceID, req.Documents); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": "Save Job Completed Successfully"})
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	var req deleteDocumentsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.app.DeleteDocuments(r.Context(), req.Token, id, req.IDsToDelete)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()
	searchSpaceID, err := strconv.ParseInt(r.FormValue("search_space_id"), 10, 64)
	if err != nil || searchSpaceID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "search_space_id required")
		return
	}

	headers := r.MultipartForm.File["files"]
	uploads := make([]app.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, app.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Open:        openPart(fh),
		})
	}
	results, err := s.app.UploadFiles(r.Context(), token, searchSpaceID, uploads)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if len(results) == 0 {
		writeJSON(w, http.StatusOK, uploadResponse{
			Status:  "error",
			Message: "No files were successfully processed",
			Details: []app.UploadResult{},
		})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:  "success",
		Message: "Files processed and indexed successfully",
		Details: results,
	})
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return fh.Open() }
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	var req createChatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	chat, err := s.app.CreateChat(req.Token, id, req.Type, req.Title, req.ChatsList)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"chat_id": chat.ID})
}

func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	var req updateChatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.UpdateChat(req.Token, id, req.ChatID, req.ChatsList); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat Updated"})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "chatID")
	if !ok {
		return
	}
	if err := s.app.DeleteChat(chi.URLParam(r, "token"), id, chatID); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat Deleted"})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "chatID")
	if !ok {
		return
	}
	chat, err := s.app.GetChat(chi.URLParam(r, "token"), id, chatID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "searchSpaceID")
	if !ok {
		return
	}
	chats, err := s.app.ListChats(chi.URLParam(r, "token"), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}
