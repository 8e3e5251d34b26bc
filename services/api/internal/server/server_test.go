package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"surfsense/internal/ratelimit"
	"surfsense/pkg/ai"
	"surfsense/pkg/domain"
	"surfsense/pkg/storage"
	"surfsense/pkg/store"
	"surfsense/services/api/internal/app"
	"surfsense/services/api/internal/chatws"
	"surfsense/services/api/internal/index"
	"surfsense/services/api/internal/podcast"
)

const apiSecret = "test-api-secret"

// gatedSynth holds every generation, before it leaves pending, until release
// is closed.
type gatedSynth struct {
	objects storage.ObjectStore
	release chan struct{}
	once    sync.Once
}

func (g *gatedSynth) wait(ctx context.Context, _ int64) error {
	<-g.release
	return nil
}

func (g *gatedSynth) Synthesize(ctx context.Context, content string, wordCount int) (string, error) {
	key := "podcast_test.mp3"
	return key, g.objects.Put(ctx, key, strings.NewReader("ID3"+content), -1, "audio/mpeg")
}

func (g *gatedSynth) open() { g.once.Do(func() { close(g.release) }) }

type silentModel struct{}

func (silentModel) GenerateText(context.Context, string, string) (string, error) { return "", nil }
func (silentModel) Stream(context.Context, []ai.Message, func(string) error) error {
	return nil
}

type testServer struct {
	url      string
	synth    *gatedSynth
	podcasts *podcast.Service
}

func newTestServer(t *testing.T, loginLimit int) testServer {
	t.Helper()
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("jwt-secret", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
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
	synth := &gatedSynth{objects: objects, release: make(chan struct{})}
	pods := podcast.NewService(st, objects, synth, podcast.WithStartGate(synth.wait))
	t.Cleanup(pods.Wait)
	t.Cleanup(synth.open)

	a, err := app.New(app.Config{
		Store:        st,
		Sessions:     sessions,
		APISecretKey: apiSecret,
		Index:        index.New(st, bl),
		Podcasts:     pods,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv, err := New(Config{
		App:           a,
		Gateway:       chatws.NewHandler(chatws.Config{Backend: a, Model: silentModel{}}),
		SignupLimiter: ratelimit.NewLocalLimiter(100, time.Minute),
		LoginLimiter:  ratelimit.NewLocalLimiter(loginLimit, time.Minute),
		CORSOrigins:   []string{"http://localhost:3000"},
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	hs := httptest.NewServer(srv.Router())
	t.Cleanup(hs.Close)
	return testServer{url: hs.URL, synth: synth, podcasts: pods}
}

func doJSON(t *testing.T, method, url string, body any, header http.Header) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func detail(t *testing.T, data []byte) string {
	return decode[map[string]string](t, data)["detail"]
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (ts testServer) register(t *testing.T, username, password string) {
	t.Helper()
	resp, data := doJSON(t, http.MethodPost, ts.url+"/register", map[string]string{
		"username": username, "password": password, "apisecretkey": apiSecret,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: %d %s", username, resp.StatusCode, data)
	}
}

func (ts testServer) login(t *testing.T, username, password string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.PostForm(ts.url+"/token", url.Values{"username": {username}, "password": {password}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (ts testServer) token(t *testing.T, username, password string) string {
	t.Helper()
	ts.register(t, username, password)
	resp, data := ts.login(t, username, password)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, resp.StatusCode, data)
	}
	tok := decode[map[string]string](t, data)
	if tok["token_type"] != "bearer" || tok["access_token"] == "" {
		t.Fatalf("unexpected token response %s", data)
	}
	return tok["access_token"]
}

func (ts testServer) createSpace(t *testing.T, token, name string) int64 {
	t.Helper()
	resp, data := doJSON(t, http.MethodPost, ts.url+"/user/create/searchspace/", map[string]string{
		"token": token, "name": name, "description": "d",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create space: %d %s", resp.StatusCode, data)
	}
	return decode[domain.SearchSpace](t, data).ID
}

func spacePath(ts testServer, id int64, rest string) string {
	return ts.url + "/searchspace/" + itoa(id) + rest
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestRegisterLoginCreatePodcastFlow(t *testing.T) {
	ts := newTestServer(t, 100)
	token := ts.token(t, "u1", "p1")
	spaceID := ts.createSpace(t, token, "research")

	resp, data := doJSON(t, http.MethodPost, spacePath(ts, spaceID, "/podcasts/"), map[string]any{
		"title": "Episode 1", "content": "Gophers are great.", "word_count": 500,
	}, bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create podcast: %d %s", resp.StatusCode, data)
	}
	created := decode[domain.Podcast](t, data)
	if created.Status != domain.PodcastPending || created.IsCompleted || created.Title != "Episode 1" {
		t.Fatalf("unexpected created podcast %s", data)
	}

	resp, data = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/podcasts/"), nil, bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list podcasts: %d %s", resp.StatusCode, data)
	}
	list := decode[[]domain.Podcast](t, data)
	if len(list) != 1 || list[0].Status != domain.PodcastPending || list[0].IsCompleted {
		t.Fatalf("expected one pending podcast, got %s", data)
	}

	resp, data = doJSON(t, http.MethodGet, ts.url+"/user/"+token+"/searchspace/"+itoa(spaceID)+"/podcasts", nil, nil)
	if resp.StatusCode != http.StatusOK || len(decode[[]domain.Podcast](t, data)) != 1 {
		t.Fatalf("legacy list: %d %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/podcasts/"+itoa(created.ID)+"/download"), nil, bearer(token))
	if resp.StatusCode != http.StatusNotFound || detail(t, data) != app.ErrPodcastFileMissing.Error() {
		t.Fatalf("download before generation: %d %s", resp.StatusCode, data)
	}

	ts.synth.open()
	ts.podcasts.Wait()

	req, _ := http.NewRequest(http.MethodGet, ts.url+"/user/"+token+"/searchspace/"+itoa(spaceID)+"/download-podcast/"+itoa(created.ID), nil)
	dl, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK || dl.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("download: %d %s", dl.StatusCode, dl.Header.Get("Content-Type"))
	}
	if dl.Header.Get("Content-Disposition") != "attachment; filename=Episode 1.mp3" {
		t.Fatalf("content disposition = %q", dl.Header.Get("Content-Disposition"))
	}
	if string(body) != "ID3Gophers are great." {
		t.Fatalf("audio = %q", body)
	}

	title := "Renamed"
	resp, data = doJSON(t, http.MethodPut, spacePath(ts, spaceID, "/podcasts/"+itoa(created.ID)), map[string]any{"title": title}, bearer(token))
	updated := decode[domain.Podcast](t, data)
	if resp.StatusCode != http.StatusOK || updated.Title != title || updated.PodcastContent != "Gophers are great." || updated.Status != domain.PodcastCompleted {
		t.Fatalf("partial update: %d %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodDelete, spacePath(ts, spaceID, "/podcasts/"+itoa(created.ID)), nil, bearer(token))
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["message"] != "Podcast deleted successfully" {
		t.Fatalf("delete: %d %s", resp.StatusCode, data)
	}
}

func TestRegisterRejections(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, data := doJSON(t, http.MethodPost, ts.url+"/register", map[string]string{
		"username": "u1", "password": "p1", "apisecretkey": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized || detail(t, data) != "Unauthorized" {
		t.Fatalf("wrong secret: %d %s", resp.StatusCode, data)
	}
	ts.register(t, "u1", "p1")
	resp, data = doJSON(t, http.MethodPost, ts.url+"/register", map[string]string{
		"username": "u1", "password": "p2", "apisecretkey": apiSecret,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest || detail(t, data) != "Email already registered" {
		t.Fatalf("duplicate: %d %s", resp.StatusCode, data)
	}
	if strings.Contains(string(data), "hashed_password") {
		t.Fatalf("password hash leaked")
	}
	resp, data = doJSON(t, http.MethodPost, ts.url+"/register", map[string]string{"username": "u2"}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing password: %d %s", resp.StatusCode, data)
	}
}

func TestLoginAndVerifyToken(t *testing.T) {
	ts := newTestServer(t, 100)
	token := ts.token(t, "u1", "p1")

	resp, data := ts.login(t, "u1", "bad")
	if resp.StatusCode != http.StatusUnauthorized || detail(t, data) != "Incorrect username or password" {
		t.Fatalf("bad password: %d %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, http.MethodGet, ts.url+"/verify-token/"+token, nil, nil)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["message"] != "Token is valid" {
		t.Fatalf("verify: %d %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, http.MethodGet, ts.url+"/verify-token/not-a-token", nil, nil)
	if resp.StatusCode != http.StatusForbidden || detail(t, data) != "Token is invalid or expired" {
		t.Fatalf("invalid token: %d %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodPost, ts.url+"/logout", nil, bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d %s", resp.StatusCode, data)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.url+"/verify-token/"+token, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("revoked token accepted: %d", resp.StatusCode)
	}
}

func TestInvalidTokensAreForbidden(t *testing.T) {
	ts := newTestServer(t, 100)
	token := ts.token(t, "u1", "p1")
	spaceID := ts.createSpace(t, token, "research")

	for name, bad := range map[string]string{"malformed": "garbage", "tampered": token + "x"} {
		resp, data := doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/podcasts/"), nil, bearer(bad))
		if resp.StatusCode != http.StatusForbidden || detail(t, data) != app.ErrInvalidToken.Error() {
			t.Fatalf("%s bearer: %d %s", name, resp.StatusCode, data)
		}
		resp, data = doJSON(t, http.MethodGet, ts.url+"/user/"+bad+"/searchspaces/", nil, nil)
		if resp.StatusCode != http.StatusForbidden || detail(t, data) != app.ErrInvalidToken.Error() {
			t.Fatalf("%s path token: %d %s", name, resp.StatusCode, data)
		}
		resp, data = doJSON(t, http.MethodGet, ts.url+"/verify-token/"+bad, nil, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s verify: %d %s", name, resp.StatusCode, data)
		}
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, 2)
	ts.register(t, "u1", "p1")
	for i := 0; i < 2; i++ {
		if resp, data := ts.login(t, "u1", "p1"); resp.StatusCode != http.StatusOK {
			t.Fatalf("login %d: %d %s", i, resp.StatusCode, data)
		}
	}
	resp, _ := ts.login(t, "u1", "p1")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestCrossUserAccessIsNotFound(t *testing.T) {
	ts := newTestServer(t, 100)
	alice := ts.token(t, "alice", "pa")
	bob := ts.token(t, "bob", "pb")
	spaceID := ts.createSpace(t, alice, "private")

	resp, data := doJSON(t, http.MethodGet, ts.url+"/user/"+bob+"/searchspace/"+itoa(spaceID)+"/", nil, nil)
	if resp.StatusCode != http.StatusNotFound || detail(t, data) != "Search space not found or does not belong to the user" {
		t.Fatalf("cross-user get: %d %s", resp.StatusCode, data)
	}
	resp, _ = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/podcasts/"), nil, bearer(bob))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user podcasts: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/chats/"+bob), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user chats: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/podcasts/"), nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing bearer: %d", resp.StatusCode)
	}
}

func TestChatEndpoints(t *testing.T) {
	ts := newTestServer(t, 100)
	token := ts.token(t, "u1", "p1")
	spaceID := ts.createSpace(t, token, "s")

	resp, data := doJSON(t, http.MethodPost, spacePath(ts, spaceID, "/chat/create"), map[string]any{
		"token": token, "type": "text", "title": "first", "chats_list": []map[string]string{{"role": "user", "content": "hi"}},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create chat: %d %s", resp.StatusCode, data)
	}
	chatID := decode[map[string]int64](t, data)["chat_id"]

	resp, data = doJSON(t, http.MethodPost, spacePath(ts, spaceID, "/chat/update"), map[string]any{
		"token": token, "chatid": chatID, "chats_list": []map[string]string{{"role": "user", "content": "bye"}},
	}, nil)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["message"] != "Chat Updated" {
		t.Fatalf("update chat: %d %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/chat/"+token+"/"+itoa(chatID)), nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"bye"`) {
		t.Fatalf("get chat: %d %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/chat/delete/"+token+"/"+itoa(chatID)), nil, nil)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["message"] != "Chat Deleted" {
		t.Fatalf("delete chat: %d %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, http.MethodGet, spacePath(ts, spaceID, "/chats/"+token), nil, nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("list chats: %d %s", resp.StatusCode, data)
	}
}

func TestUploadAndSaveDocuments(t *testing.T) {
	ts := newTestServer(t, 100)
	token := ts.token(t, "u1", "p1")
	spaceID := ts.createSpace(t, token, "s")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("search_space_id", itoa(spaceID))
	fw, _ := mw.CreateFormFile("files", "notes.txt")
	_, _ = fw.Write([]byte("gophers dig tunnels"))
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, ts.url+"/user/uploadfiles/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var up struct {
		Status  string             `json:"status"`
		Details []app.UploadResult `json:"details"`
	}
	if err := json.Unmarshal(data, &up); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if resp.StatusCode != http.StatusOK || up.Status != "success" || len(up.Details) != 1 || up.Details[0].Status != "success" {
		t.Fatalf("upload: %d %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodPost, ts.url+"/user/save/", map[string]any{
		"token":           token,
		"search_space_id": spaceID,
		"documents": []map[string]any{{
			"metadata":    map[string]any{"VisitedWebPageTitle": "Go", "VisitedWebPageURL": "https://go.dev"},
			"pageContent": "Go is simple.",
		}},
	}, nil)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["success"] != "Save Job Completed Successfully" {
		t.Fatalf("save: %d %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodGet, ts.url+"/user/"+token+"/searchspace/"+itoa(spaceID)+"/documents/", nil, nil)
	docs := decode[[]domain.Document](t, data)
	if resp.StatusCode != http.StatusOK || len(docs) != 2 {
		t.Fatalf("documents: %d %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, http.MethodPost, spacePath(ts, spaceID, "/delete/docs"), map[string]any{
		"token": token, "ids_to_delete": []int64{docs[0].ID, docs[1].ID},
	}, nil)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["message"] != "Documents Deleted" {
		t.Fatalf("delete docs: %d %s", resp.StatusCode, data)
	}
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t, 100)
	req, _ := http.NewRequest(http.MethodOptions, ts.url+"/register", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("preflight: %d %v", resp.StatusCode, resp.Header)
	}
	resp, data := doJSON(t, http.MethodGet, ts.url+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("healthz: %d %s", resp.StatusCode, data)
	}
}
