package presence

import (
	"sync"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
)

// Table is the live mapping of open connections to authenticated identities.
// At most one entry per connection id; an identity may appear behind several
// connections (multiple devices). Safe for concurrent use from independent
// connection lifecycles.
type Table struct {
	mu      sync.RWMutex
	entries map[string]uuid.UUID
}

func NewTable() *Table {
	return &Table{
		entries: make(map[string]uuid.UUID),
	}
}

// Record inserts the connection→identity entry. A connection id that is
// already recorded must be removed first; recording it again is an invariant
// violation and fails with ErrAlreadyPresent.
func (t *Table) Record(connID string, userID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[connID]; ok {
		return domain.ErrAlreadyPresent
	}
	t.entries[connID] = userID
	return nil
}

// IdentityOf resolves the identity behind a live connection.
func (t *Table) IdentityOf(connID string) (uuid.UUID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	userID, ok := t.entries[connID]
	if !ok {
		return uuid.Nil, domain.ErrNotConnected
	}
	return userID, nil
}

// Remove deletes the entry. Idempotent; no-op if absent.
func (t *Table) Remove(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, connID)
}
