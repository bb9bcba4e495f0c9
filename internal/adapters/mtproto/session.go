package mtproto

import (
	"context"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
)

// SessionMemory хранит сессию в памяти процесса.
type SessionMemory struct {
	mu   sync.Mutex
	data []byte
}

var _ telegram.SessionStorage = (*SessionMemory)(nil)

// LoadSession загружает сессию.
func (s *SessionMemory) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

// StoreSession сохраняет сессию.
func (s *SessionMemory) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

// SessionRepo хранит сессии по имени во внешней БД.
type SessionRepo interface {
	LoadMTProtoSession(ctx context.Context, name string) ([]byte, error)
	StoreMTProtoSession(ctx context.Context, name string, data []byte) error
}

// SessionDB — хранилище сессии gotd поверх SessionRepo.
type SessionDB struct {
	repo SessionRepo
	name string
}

var _ telegram.SessionStorage = (*SessionDB)(nil)

// NewSessionDB создаёт хранилище именованной сессии.
func NewSessionDB(repo SessionRepo, name string) *SessionDB {
	if name == "" {
		name = "default"
	}
	return &SessionDB{repo: repo, name: name}
}

// LoadSession загружает сессию.
func (s *SessionDB) LoadSession(ctx context.Context) ([]byte, error) {
	return s.repo.LoadMTProtoSession(ctx, s.name)
}

// StoreSession сохраняет сессию.
func (s *SessionDB) StoreSession(ctx context.Context, data []byte) error {
	return s.repo.StoreMTProtoSession(ctx, s.name, data)
}

// NewSessionStorage выбирает хранилище: БД, если repo задан, иначе файл.
func NewSessionStorage(repo SessionRepo, name, path string) telegram.SessionStorage {
	if repo != nil {
		return NewSessionDB(repo, name)
	}
	return &session.FileStorage{Path: path}
}
