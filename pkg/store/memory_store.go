package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"surfsense/pkg/domain"
)

// MemoryStore keeps all rows in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]domain.User
	byName   map[string]int64
	spaces   map[int64]domain.SearchSpace
	chats    map[int64]domain.Chat
	docs     map[int64]domain.Document
	podcasts map[int64]domain.Podcast
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]domain.User),
		byName:   make(map[string]int64),
		spaces:   make(map[int64]domain.SearchSpace),
		chats:    make(map[int64]domain.Chat),
		docs:     make(map[int64]domain.Document),
		podcasts: make(map[int64]domain.Podcast),
	}
}

func (m *MemoryStore) newID() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return domain.User{}, ErrConflict
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return domain.User{}, ErrConflict
		}
	}
	u.ID = m.newID()
	m.users[u.ID] = u
	m.byName[u.Username] = u.ID
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[username]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CreateSearchSpace(s domain.SearchSpace) (domain.SearchSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.newID()
	m.spaces[s.ID] = s
	return s, nil
}

func (m *MemoryStore) GetSearchSpace(id int64) (domain.SearchSpace, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[id]
	return s, ok, nil
}

func (m *MemoryStore) ListSearchSpacesByUser(userID int64) ([]domain.SearchSpace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.SearchSpace, 0)
	for _, s := range m.spaces {
		if s.UserID == userID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) DeleteSearchSpace(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cid, c := range m.chats {
		if c.SearchSpaceID == id {
			delete(m.chats, cid)
		}
	}
	for did, d := range m.docs {
		if d.SearchSpaceID == id {
			delete(m.docs, did)
		}
	}
	for pid, p := range m.podcasts {
		if p.SearchSpaceID == id {
			delete(m.podcasts, pid)
		}
	}
	delete(m.spaces, id)
	return nil
}

func (m *MemoryStore) CreateChat(c domain.Chat) (domain.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.newID()
	c.ChatsList = normalizeList(c.ChatsList)
	m.chats[c.ID] = c
	return c, nil
}

func (m *MemoryStore) GetChat(id int64) (domain.Chat, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	return c, ok, nil
}

func (m *MemoryStore) ListChatsBySearchSpace(searchSpaceID int64) ([]domain.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Chat, 0)
	for _, c := range m.chats {
		if c.SearchSpaceID == searchSpaceID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) UpdateChatList(id int64, chatsList json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return nil
	}
	c.ChatsList = normalizeList(chatsList)
	m.chats[id] = c
	return nil
}

func (m *MemoryStore) DeleteChat(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, id)
	return nil
}

func (m *MemoryStore) CreateDocuments(docs []domain.Document) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		d.ID = m.newID()
		m.docs[d.ID] = d
		res = append(res, d)
	}
	return res, nil
}

func (m *MemoryStore) ListDocumentsBySearchSpace(searchSpaceID int64) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for _, d := range m.docs {
		if d.SearchSpaceID == searchSpaceID {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) DeleteDocuments(searchSpaceID int64, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if d, ok := m.docs[id]; ok && d.SearchSpaceID == searchSpaceID {
			delete(m.docs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreatePodcast(p domain.Podcast) (domain.Podcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.newID()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	m.podcasts[p.ID] = p
	return p, nil
}

func (m *MemoryStore) GetPodcast(id int64) (domain.Podcast, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.podcasts[id]
	return p, ok, nil
}

func (m *MemoryStore) ListPodcastsBySearchSpace(searchSpaceID int64) ([]domain.Podcast, error) {
	return m.filterPodcasts(func(p domain.Podcast) bool { return p.SearchSpaceID == searchSpaceID }), nil
}

func (m *MemoryStore) ListPodcastsByStatus(status domain.PodcastStatus, updatedBefore time.Time) ([]domain.Podcast, error) {
	return m.filterPodcasts(func(p domain.Podcast) bool {
		return p.Status == status && p.UpdatedAt.Before(updatedBefore)
	}), nil
}

func (m *MemoryStore) filterPodcasts(keep func(domain.Podcast) bool) []domain.Podcast {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Podcast, 0)
	for _, p := range m.podcasts {
		if keep(p) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (m *MemoryStore) UpdatePodcast(id int64, update domain.PodcastUpdate) (domain.Podcast, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.podcasts[id]
	if !ok {
		return domain.Podcast{}, false, nil
	}
	if update.Title != nil {
		p.Title = *update.Title
	}
	if update.Content != nil {
		p.PodcastContent = *update.Content
	}
	if update.Status != nil {
		p.Status = *update.Status
	}
	if update.IsCompleted != nil {
		p.IsCompleted = *update.IsCompleted
	}
	p.UpdatedAt = time.Now().UTC()
	m.podcasts[id] = p
	return p, true, nil
}

func (m *MemoryStore) SetPodcastResult(id int64, status domain.PodcastStatus, fileLocation *string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.podcasts[id]
	if !ok {
		return nil
	}
	p.Status = status
	p.IsCompleted = completed
	if fileLocation != nil {
		loc := *fileLocation
		p.FileLocation = &loc
	}
	p.UpdatedAt = time.Now().UTC()
	m.podcasts[id] = p
	return nil
}

func (m *MemoryStore) DeletePodcast(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.podcasts, id)
	return nil
}
