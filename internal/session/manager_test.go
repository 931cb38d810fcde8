package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/cramplan/internal/schedule"
	"github.com/kalambet/cramplan/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu     sync.Mutex
	data   map[string]string
	puts   int
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) PutState(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.data[key] = value
	return nil
}

func (m *mockStore) GetState(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) DeleteState(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var t0 = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

func newTestManager(store StateStore) *Manager {
	return NewManagerWithClock(store, fixedClock{now: t0})
}

func TestLoad_EmptySlot(t *testing.T) {
	m := newTestManager(newMockStore())

	st, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !st.IsZero() {
		t.Errorf("expected zero state, got %+v", st)
	}
}

func TestGenerate_Persists(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store)

	st, err := m.Generate("2025-06-20", "Mitochondria\n\nKrebs cycle\n")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := st.Dates(); len(got) != 3 {
		t.Errorf("dates = %v, want 3 (offsets 0, 1, 3)", got)
	}

	var saved schedule.State
	if err := json.Unmarshal([]byte(store.data[StateKey]), &saved); err != nil {
		t.Fatalf("slot is not valid JSON: %v", err)
	}
	if saved.TestDate != "2025-06-20" || len(saved.Items) != 2 {
		t.Errorf("saved = %+v", saved)
	}
	if _, ok := saved.Schedule["2025-06-18"]; !ok {
		t.Errorf("saved schedule missing 2025-06-18: %v", saved.Schedule)
	}
}

func TestGenerate_InvalidInputDoesNotWrite(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store)

	if _, err := m.Generate("not-a-date", "x"); !errors.Is(err, schedule.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}
	if _, err := m.Generate("2025-06-20", "  \n\t\n"); !errors.Is(err, schedule.ErrNoItems) {
		t.Errorf("err = %v, want ErrNoItems", err)
	}
	if store.puts != 0 {
		t.Errorf("puts = %d, want 0", store.puts)
	}
}

func TestToggle_PersistsAndRoundTrips(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store)

	if _, err := m.Generate("2025-06-30", "a\nb"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := m.Toggle("2025-06-16", "card-1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	// A second manager over the same store sees the toggle.
	other := newTestManager(store)
	st, err := other.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !st.Schedule["2025-06-16"][1].Done {
		t.Error("card-1 on 2025-06-16 should be done after reload")
	}
	if st.Schedule["2025-06-15"][1].Done {
		t.Error("card-1 on 2025-06-15 should be untouched")
	}
}

func TestToggle_UnknownDoesNotWrite(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store)
	m.Generate("2025-06-30", "a")
	before := store.puts

	if _, err := m.Toggle("2025-06-17", "card-0"); !errors.Is(err, schedule.ErrUnknownDate) {
		t.Errorf("err = %v, want ErrUnknownDate", err)
	}
	if _, err := m.Toggle("2025-06-15", "card-9"); !errors.Is(err, schedule.ErrUnknownItem) {
		t.Errorf("err = %v, want ErrUnknownItem", err)
	}
	if store.puts != before {
		t.Errorf("puts = %d, want %d", store.puts, before)
	}
}

func TestToggle_WithoutState(t *testing.T) {
	m := newTestManager(newMockStore())

	if _, err := m.Toggle("2025-06-15", "card-0"); !errors.Is(err, schedule.ErrUnknownDate) {
		t.Errorf("err = %v, want ErrUnknownDate", err)
	}
}

func TestLoad_VerbatimDecode(t *testing.T) {
	store := newMockStore()
	// Shape is not validated: a dangling schedule key survives.
	store.data[StateKey] = `{"testDate":"2025-01-01","items":[],"schedule":{"1999-01-01":[{"id":"x","prompt":"p","done":true}]}}`

	st, err := newTestManager(store).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Schedule["1999-01-01"]) != 1 {
		t.Errorf("schedule = %v, want stored entry verbatim", st.Schedule)
	}
}

func TestLoad_CorruptSlot(t *testing.T) {
	store := newMockStore()
	store.data[StateKey] = "{not json"

	if _, err := newTestManager(store).Load(); err == nil {
		t.Error("expected decode error")
	}
}

func TestGenerate_StoreFailure(t *testing.T) {
	store := newMockStore()
	store.putErr = errors.New("disk full")
	m := newTestManager(store)

	if _, err := m.Generate("2025-06-20", "a"); err == nil {
		t.Fatal("expected write error")
	}
}

func TestManager_ConcurrentToggles(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store)
	m.Generate("2025-06-30", "a\nb\nc\nd")

	var wg sync.WaitGroup
	for _, id := range []string{"card-0", "card-1", "card-2", "card-3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := m.Toggle("2025-06-15", id); err != nil {
				t.Errorf("Toggle %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	st, _ := m.Load()
	done, _ := st.Progress()
	if done != 4 {
		t.Errorf("done = %d, want 4 (no lost updates)", done)
	}
}

func TestClear(t *testing.T) {
	store := newMockStore()
	m := newTestManager(store)
	if _, err := m.Generate("2025-07-05", "Mitosis\nMeiosis"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := store.data[StateKey]; ok {
		t.Error("slot still present after Clear")
	}
	st, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !st.IsZero() {
		t.Errorf("state after Clear = %+v, want zero", st)
	}

	if err := m.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
