package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/arena/internal/models"
)

// UserStore reads profile decorations from the users table.
type UserStore struct {
	q Querier
}

func NewUserStore(q Querier) *UserStore {
	return &UserStore{q: q}
}

// LookupAvatar returns the avatar for username, or "" if the user is unknown.
func (s *UserStore) LookupAvatar(ctx context.Context, username string) (string, error) {
	var avatar string
	err := s.q.QueryRow(ctx, `SELECT avatar FROM users WHERE username=$1`, username).Scan(&avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup avatar for %q: %w", username, err)
	}
	return avatar, nil
}

// MemoryUsers is the directory used when no database is configured.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]models.User)}
}

// Put adds or replaces a profile, keyed by username.
func (m *MemoryUsers) Put(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
}

func (m *MemoryUsers) LookupAvatar(_ context.Context, username string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[username].Avatar, nil
}
