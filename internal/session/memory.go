package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mbrandao/opchat/internal/models"
)

// MemoryStore keeps sessions in process memory. It backs the chat CLI
// and tests; state is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load returns a deep copy of the stored session, or (nil, nil) when absent.
func (m *MemoryStore) Load(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	sess := &models.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, nil
}

// Save stores a serialized copy so later mutation of the caller's
// session value cannot leak into the store.
func (m *MemoryStore) Save(_ context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	m.mu.Lock()
	m.sessions[sess.ID] = data
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
