package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/cramplan/internal/schedule"
)

// Form is the user input shared by study plans and practice tests.
type Form struct {
	TestName  string `json:"testName"`
	TestDate  string `json:"testDate"`
	Materials string `json:"materials"`
}

// ValidationError reports a rejected form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the form against now. The test date must fall strictly
// after today's calendar date.
func (f Form) Validate(now time.Time) error {
	if strings.TrimSpace(f.TestName) == "" {
		return &ValidationError{Field: "testName", Message: "is required"}
	}
	test, err := schedule.ParseDate(f.TestDate)
	if err != nil {
		return &ValidationError{Field: "testDate", Message: "must be a YYYY-MM-DD date"}
	}
	if !test.After(schedule.Day(now)) {
		return &ValidationError{Field: "testDate", Message: "must be in the future"}
	}
	if strings.TrimSpace(f.Materials) == "" {
		return &ValidationError{Field: "materials", Message: "is required"}
	}
	return nil
}

// DaysUntil returns the whole calendar days from now until the test date,
// or 0 when the date does not parse.
func (f Form) DaysUntil(now time.Time) int {
	test, err := schedule.ParseDate(f.TestDate)
	if err != nil {
		return 0
	}
	return int(test.Sub(schedule.Day(now)).Hours() / 24)
}
