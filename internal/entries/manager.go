package entries

import (
	"context"
	"log"
	"sync"
)

// Manager hands out one Engine per user for the lifetime of the process.
// The first access performs the initial load.
type Manager struct {
	store Store

	mu      sync.Mutex
	engines map[int]*Engine
}

func NewManager(st Store) *Manager {
	return &Manager{
		store:   st,
		engines: make(map[int]*Engine),
	}
}

// ForUser returns the user's engine, creating and loading it on first use.
// A failed initial load still returns the engine; the error sits in its
// last-error slot and the next mutation's reload will retry.
func (m *Manager) ForUser(ctx context.Context, userID int) *Engine {
	m.mu.Lock()
	eng, ok := m.engines[userID]
	if !ok {
		eng = NewEngine(m.store, userID)
		m.engines[userID] = eng
	}
	m.mu.Unlock()

	if !ok {
		if err := eng.Reload(ctx); err != nil {
			log.Printf("[WARN] initial load failed user_id=%d: %v", userID, err)
		}
	}
	return eng
}

// Drop forgets a user's engine (used when the account is deleted).
func (m *Manager) Drop(userID int) {
	m.mu.Lock()
	delete(m.engines, userID)
	m.mu.Unlock()
}
