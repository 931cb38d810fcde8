package schedule

import "errors"

// Sentinel errors for the schedule package.
var (
	ErrInvalidDate = errors.New("schedule: invalid test date")
	ErrNoItems     = errors.New("schedule: no study items")
	ErrUnknownDate = errors.New("schedule: date not in schedule")
	ErrUnknownItem = errors.New("schedule: item not scheduled on date")
)
