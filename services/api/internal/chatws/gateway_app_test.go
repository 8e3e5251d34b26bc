package chatws

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"surfsense/pkg/storage"
	"surfsense/pkg/store"
	"surfsense/services/api/internal/app"
	"surfsense/services/api/internal/index"
	"surfsense/services/api/internal/podcast"
)

const (
	gatewayJWTSecret = "gateway-jwt-secret"
	gatewayAPISecret = "gateway-api-secret"
)

func newAppGateway(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore(gatewayJWTSecret, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	bl, err := index.OpenBleveIndex(filepath.Join(t.TempDir(), "idx.bleve"))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	t.Cleanup(func() { _ = bl.Close() })
	objects, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("objects: %v", err)
	}
	a, err := app.New(app.Config{
		Store:        st,
		Sessions:     sessions,
		APISecretKey: gatewayAPISecret,
		Index:        index.New(st, bl),
		Podcasts:     podcast.NewService(st, objects, nil),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	h := NewHandler(Config{Backend: a, Model: &fakeModel{tokens: []string{"ok"}}, AllowedOrigins: []string{"*"}})
	r := chi.NewRouter()
	r.Get("/beta/chat/{searchSpaceID}/{token}", h.Chat)
	r.Get("/user/upload/{searchSpaceID}/{token}", h.Upload)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, a
}

func signupToken(t *testing.T, a *app.App, username string) string {
	t.Helper()
	if _, err := a.Register(username, "pw", gatewayAPISecret); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := a.Login(username, "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return token
}

func closeCode(t *testing.T, ws *websocket.Conn) (int, string) {
	t.Helper()
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close frame, got %v", err)
	}
	return ce.Code, ce.Text
}

func TestGatewayWithAppRejectsBadTokens(t *testing.T) {
	srv, a := newAppGateway(t)
	token := signupToken(t, a, "alice")
	space, err := a.CreateSearchSpace(token, "notes", "")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	sid := strconv.FormatInt(space.ID, 10)

	now := time.Now()
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	}).SignedString([]byte(gatewayJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, bad := range map[string]string{
		"garbage":  "garbage",
		"tampered": token + "x",
		"expired":  expired,
	} {
		for _, path := range []string{"/beta/chat/" + sid + "/" + bad, "/user/upload/" + sid + "/" + bad} {
			ws := dial(t, srv, path)
			if code, text := closeCode(t, ws); code != closeInvalidToken || text != "Invalid token" {
				t.Fatalf("%s %s: close %d %q", name, path, code, text)
			}
		}
	}
}

func TestGatewayWithAppRejectsForeignSpaceAndServesOwner(t *testing.T) {
	srv, a := newAppGateway(t)
	alice := signupToken(t, a, "alice")
	bob := signupToken(t, a, "bob")
	space, err := a.CreateSearchSpace(alice, "notes", "")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	sid := strconv.FormatInt(space.ID, 10)

	ws := dial(t, srv, "/beta/chat/"+sid+"/"+bob)
	if code, text := closeCode(t, ws); code != closeRejected || text != app.ErrSearchSpaceNotFound.Error() {
		t.Fatalf("foreign space: close %d %q", code, text)
	}

	ws = dial(t, srv, "/beta/chat/"+sid+"/"+alice)
	if err := ws.WriteJSON(map[string]any{"type": "multiple_documents_chat", "content": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	replies := readReplies(t, ws)
	if len(replies) != 2 || replies[0].Type != "stream" || replies[0].Content != "ok" {
		t.Fatalf("replies = %+v", replies)
	}
}
