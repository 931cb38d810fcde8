package api

import (
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a generation is already running.
var ErrBusy = errors.New("a generation is already in progress")

// Guard admits one generation call at a time across the HTTP and MCP surfaces.
// Callers that find it taken are rejected rather than queued.
type Guard struct {
	sem *semaphore.Weighted
}

// NewGuard creates an idle Guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// Do runs fn if no other call holds the guard, otherwise returns ErrBusy.
func (g *Guard) Do(fn func() error) error {
	if !g.sem.TryAcquire(1) {
		return ErrBusy
	}
	defer g.sem.Release(1)
	return fn()
}
