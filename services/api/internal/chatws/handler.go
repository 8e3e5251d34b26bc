package chatws

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"surfsense/internal/metrics"
	"surfsense/internal/util"
	"surfsense/pkg/ai"
	"surfsense/pkg/domain"
	"surfsense/services/api/internal/app"
)

const (
	// FlushEvery is the number of tokens between cumulative stream messages.
	FlushEvery = 20

	closeInvalidToken = 4003
	closeRejected     = 4000

	sourceLimit = 5
	writeWait   = 10 * time.Second
)

const qaPrompt = "You are an helpful assistant for question-answering tasks.\n" +
	"Use the following pieces of retrieved context to answer the question.\n" +
	"If you don't know the answer, just say that you don't know.\n" +
	"Context:"

// Backend is the part of the application the gateways call.
type Backend interface {
	OwnedSearchSpace(token string, searchSpaceID int64) (domain.User, domain.SearchSpace, error)
	Search(ctx context.Context, searchSpaceID int64, query string, limit int) ([]domain.SearchHit, error)
	UploadFile(ctx context.Context, searchSpaceID int64, f app.Upload) app.UploadResult
}

// Config wires a Handler.
type Config struct {
	Backend         Backend
	Model           ai.ChatModel
	Registry        *Registry
	AllowedOrigins  []string
	MaxMessageBytes int64
}

// Handler serves the chat and upload WebSocket endpoints.
type Handler struct {
	backend  Backend
	model    ai.ChatModel
	registry *Registry
	upgrader websocket.Upgrader
	maxBytes int64
	now      func() time.Time
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		backend:  cfg.Backend,
		model:    cfg.Model,
		registry: cfg.Registry,
		maxBytes: cfg.MaxMessageBytes,
		now:      time.Now,
	}
	if h.registry == nil {
		h.registry = NewRegistry()
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

type historyEntry struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	RelatedDocs json.RawMessage `json:"relateddocs,omitempty"`
}

type inbound struct {
	Type        string         `json:"type"`
	Content     string         `json:"content"`
	ChatHistory []historyEntry `json:"chat_history"`
	SearchType  string         `json:"searchtype"`
	AnswerType  string         `json:"answertype"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	Data        string         `json:"data"`
}

type outbound struct {
	Type       string `json:"type"`
	Content    any    `json:"content,omitempty"`
	SearchType string `json:"searchtype,omitempty"`
	AnswerType string `json:"answertype,omitempty"`
}

// sendError marks a failed write to the client.
type sendError struct{ err error }

func (e sendError) Error() string { return e.err.Error() }
func (e sendError) Unwrap() error { return e.err }

// accept checks the token and ownership, upgrades and registers the
// connection. On failure the socket is closed with the matching code and ok
// is false.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request) (ws *websocket.Conn, id string, searchSpaceID int64, ok bool) {
	logger := util.LoggerFromContext(r.Context())
	searchSpaceID, perr := strconv.ParseInt(chi.URLParam(r, "searchSpaceID"), 10, 64)
	var err error
	if perr != nil {
		err = fmt.Errorf("invalid search space id")
	} else {
		_, _, err = h.backend.OwnedSearchSpace(chi.URLParam(r, "token"), searchSpaceID)
	}

	ws, uerr := h.upgrader.Upgrade(w, r, nil)
	if uerr != nil {
		logger.Warn("ws_upgrade_failed", "err", uerr)
		return nil, "", 0, false
	}
	if err != nil {
		code, reason := closeRejected, err.Error()
		if errors.Is(err, app.ErrInvalidToken) {
			code, reason = closeInvalidToken, "Invalid token"
		}
		logger.Info("ws_rejected", "code", code, "reason", reason)
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = ws.Close()
		return nil, "", 0, false
	}
	if h.maxBytes > 0 {
		ws.SetReadLimit(h.maxBytes)
	}
	return ws, h.registry.Add(ws), searchSpaceID, true
}

// readLoop reads JSON messages until the client goes away or handle fails
// to write.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, id string, handle func(context.Context, inbound) error) {
	logger := util.LoggerFromContext(ctx)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("ws_read_ended", "conn_id", id, "err", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if h.registry.Send(id, outbound{Type: "error", Content: "invalid message"}) != nil {
				return
			}
			continue
		}
		if err := handle(ctx, msg); err != nil {
			logger.Info("ws_write_failed", "conn_id", id, "err", err)
			return
		}
	}
}

// Chat serves GET /beta/chat/{searchSpaceID}/{token}.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ws, id, searchSpaceID, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer ws.Close()
	defer h.registry.Remove(id)

	h.readLoop(r.Context(), ws, id, func(ctx context.Context, msg inbound) error {
		switch msg.Type {
		case "multiple_documents_chat":
			return h.stream(ctx, id, h.documentsPrompt(msg))
		case "search_space_chat":
			return h.searchSpaceChat(ctx, id, searchSpaceID, msg)
		default:
			return h.registry.Send(id, outbound{Type: "error", Content: "unsupported message type"})
		}
	})
}

func (h *Handler) systemPrompt(docs string) string {
	return "Today's date is " + h.now().Format("2006-01-02") + "\n" + qaPrompt + docs
}

// documentsPrompt turns a multiple_documents_chat message into model
// messages. The first history entry carries the related documents.
func (h *Handler) documentsPrompt(msg inbound) []ai.Message {
	var docs string
	history := msg.ChatHistory
	if len(history) > 0 {
		docs = string(history[0].RelatedDocs)
		history = history[1:]
	}
	out := []ai.Message{{Role: ai.RoleSystem, Content: h.systemPrompt(docs)}}
	for _, e := range history {
		switch e.Role {
		case "user":
			out = append(out, ai.Message{Role: ai.RoleUser, Content: e.Content})
		case "assistant":
			out = append(out, ai.Message{Role: ai.RoleAssistant, Content: e.Content})
		}
	}
	return append(out, ai.Message{Role: ai.RoleUser, Content: msg.Content})
}

func (h *Handler) searchSpaceChat(ctx context.Context, id string, searchSpaceID int64, msg inbound) error {
	hits, err := h.backend.Search(ctx, searchSpaceID, msg.Content, sourceLimit)
	if err != nil {
		if err := h.registry.Send(id, outbound{Type: "error", Content: err.Error()}); err != nil {
			return err
		}
		return h.registry.Send(id, outbound{Type: "end"})
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	if err := h.registry.Send(id, outbound{
		Type:       "sources",
		Content:    hits,
		SearchType: msg.SearchType,
		AnswerType: msg.AnswerType,
	}); err != nil {
		return err
	}
	docs, _ := json.Marshal(hits)
	return h.stream(ctx, id, []ai.Message{
		{Role: ai.RoleSystem, Content: h.systemPrompt(string(docs))},
		{Role: ai.RoleUser, Content: msg.Content},
	})
}

// stream sends the cumulative answer every FlushEvery tokens and once more
// at the end unless that batch was already sent, then an end marker. A non-nil error means the client is gone.
func (h *Handler) stream(ctx context.Context, id string, messages []ai.Message) error {
	var answer strings.Builder
	count := 0
	err := h.model.Stream(ctx, messages, func(token string) error {
		answer.WriteString(token)
		count++
		if count < FlushEvery {
			return nil
		}
		count = 0
		metrics.StreamBatch()
		if err := h.registry.Send(id, outbound{Type: "stream", Content: answer.String()}); err != nil {
			return sendError{err}
		}
		return nil
	})
	var se sendError
	if errors.As(err, &se) {
		return se
	}
	if err != nil {
		util.LoggerFromContext(ctx).Error("chat_stream_failed", "conn_id", id, "err", err)
		if err := h.registry.Send(id, outbound{Type: "error", Content: err.Error()}); err != nil {
			return err
		}
		return h.registry.Send(id, outbound{Type: "end"})
	}
	// count is zero when the last batch already carried the whole answer.
	if count > 0 || answer.Len() == 0 {
		metrics.StreamBatch()
		if err := h.registry.Send(id, outbound{Type: "stream", Content: answer.String()}); err != nil {
			return err
		}
	}
	return h.registry.Send(id, outbound{Type: "end"})
}

// Upload serves GET /user/upload/{searchSpaceID}/{token}. Each file_upload
// message is answered with its per-file result.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ws, id, searchSpaceID, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer ws.Close()
	defer h.registry.Remove(id)

	h.readLoop(r.Context(), ws, id, func(ctx context.Context, msg inbound) error {
		if msg.Type != "file_upload" {
			return h.registry.Send(id, outbound{Type: "error", Content: "unsupported message type"})
		}
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return h.registry.Send(id, app.UploadResult{
				Filename: msg.Filename,
				Status:   "error",
				Error:    "invalid file data",
			})
		}
		res := h.backend.UploadFile(ctx, searchSpaceID, app.Upload{
			Filename:    msg.Filename,
			ContentType: msg.ContentType,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		})
		return h.registry.Send(id, res)
	})
}
