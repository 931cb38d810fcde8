package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Generation kinds.
const (
	KindStudyPlan    = "study_plan"
	KindPracticeTest = "practice_test"
)

// Generation is one stored result of a study plan or practice test request.
type Generation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	TestName  string    `json:"test_name"`
	TestDate  string    `json:"test_date"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Output    string    `json:"output"` // raw generated text
	CreatedAt time.Time `json:"created_at"`
}
