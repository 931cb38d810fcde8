package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/cramplan/internal/schedule"
	"github.com/kalambet/cramplan/internal/storage"
)

// StateKey is the storage slot holding the serialized review state.
const StateKey = "cramplan.state.v1"

// StateStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type StateStore interface {
	PutState(key, value string) error
	GetState(key string) (string, error)
	DeleteState(key string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager serializes access to the review state and writes it through to
// the store after every successful change.
type Manager struct {
	store StateStore
	clock Clock

	mu    sync.Mutex
	state schedule.State
}

// NewManager creates a Manager using the wall clock.
func NewManager(store StateStore) *Manager {
	return NewManagerWithClock(store, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store StateStore, clock Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// Load reads the persisted state. An empty slot yields the zero State.
func (m *Manager) Load() (schedule.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return schedule.State{}, err
	}
	return m.state, nil
}

// Generate builds a fresh schedule from materials, replacing any prior state.
// Nothing is written when the inputs are rejected.
func (m *Manager) Generate(testDate, materials string) (schedule.State, error) {
	st, err := schedule.Generate(m.clock.Now(), testDate, schedule.SplitLines(materials))
	if err != nil {
		return schedule.State{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.saveLocked(st); err != nil {
		return schedule.State{}, err
	}
	return st, nil
}

// Toggle flips one item's done flag on one date and persists the result.
func (m *Manager) Toggle(date, id string) (schedule.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return schedule.State{}, err
	}
	st, err := schedule.ToggleDone(m.state, date, id)
	if err != nil {
		return schedule.State{}, err
	}
	if err := m.saveLocked(st); err != nil {
		return schedule.State{}, err
	}
	return st, nil
}

// Clear removes the persisted schedule. Clearing an empty slot is not an error.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteState(StateKey); err != nil {
		return fmt.Errorf("clearing state: %w", err)
	}
	m.state = schedule.State{}
	return nil
}

// loadLocked always rereads the slot so writes from another process
// (the CLI next to a running server) are picked up.
func (m *Manager) loadLocked() error {
	raw, err := m.store.GetState(StateKey)
	if errors.Is(err, storage.ErrNotFound) {
		m.state = schedule.State{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}

	var st schedule.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}
	m.state = st
	return nil
}

func (m *Manager) saveLocked(st schedule.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := m.store.PutState(StateKey, string(b)); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	m.state = st
	return nil
}
