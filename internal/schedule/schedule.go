package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for test dates and schedule keys.
const DateLayout = "2006-01-02"

// Offsets are the review days, counted from the generation day.
var Offsets = []int{0, 1, 3, 7, 14}

// Item is one study prompt as reviewed on a single date.
type Item struct {
	ID     string `json:"id" yaml:"id"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Done   bool   `json:"done" yaml:"done"`
}

// Schedule maps a YYYY-MM-DD date to the items reviewed that day.
type Schedule map[string][]Item

// State is the whole persisted review plan.
type State struct {
	TestDate string   `json:"testDate" yaml:"testDate"`
	Items    []Item   `json:"items" yaml:"items"`
	Schedule Schedule `json:"schedule" yaml:"schedule"`
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Day drops the time of day, keeping the calendar date as seen in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SplitLines splits materials into non-empty trimmed lines.
func SplitLines(materials string) []string {
	var out []string
	for _, line := range strings.Split(materials, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NewItems builds items from raw lines. Blank lines are skipped; IDs are
// positional within the kept lines.
func NewItems(lines []string) []Item {
	var items []Item
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		items = append(items, Item{ID: fmt.Sprintf("card-%d", len(items)), Prompt: s})
	}
	return items
}

// Generate builds a fresh State. A date is scheduled for every offset whose
// candidate day does not pass testDate; each scheduled date gets its own copy
// of every item. A testDate before today yields an empty schedule.
func Generate(today time.Time, testDate string, lines []string) (State, error) {
	test, err := ParseDate(testDate)
	if err != nil {
		return State{}, err
	}
	items := NewItems(lines)
	if len(items) == 0 {
		return State{}, ErrNoItems
	}

	start := Day(today)
	sched := make(Schedule)
	for _, off := range Offsets {
		candidate := start.AddDate(0, 0, off)
		if candidate.After(test) {
			continue
		}
		sched[candidate.Format(DateLayout)] = copyItems(items)
	}

	return State{
		TestDate: test.Format(DateLayout),
		Items:    items,
		Schedule: sched,
	}, nil
}

// ToggleDone returns a copy of st with the done flag of item id flipped on
// date. Copies of the same item on other dates are untouched.
func ToggleDone(st State, date, id string) (State, error) {
	entry, ok := st.Schedule[date]
	if !ok {
		return st, fmt.Errorf("%w: %s", ErrUnknownDate, date)
	}
	idx := -1
	for i, it := range entry {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return st, fmt.Errorf("%w: %s on %s", ErrUnknownItem, id, date)
	}

	out := st.clone()
	out.Schedule[date][idx].Done = !out.Schedule[date][idx].Done
	return out, nil
}

// Dates returns the scheduled dates in ascending order.
func (s State) Dates() []string {
	dates := make([]string, 0, len(s.Schedule))
	for d := range s.Schedule {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Progress reports how many item copies are done across all dates.
func (s State) Progress() (done, total int) {
	for _, entry := range s.Schedule {
		for _, it := range entry {
			total++
			if it.Done {
				done++
			}
		}
	}
	return done, total
}

// IsZero reports whether nothing has been generated yet.
func (s State) IsZero() bool {
	return s.TestDate == "" && len(s.Items) == 0 && len(s.Schedule) == 0
}

func (s State) clone() State {
	out := State{TestDate: s.TestDate, Items: copyItems(s.Items)}
	if s.Schedule != nil {
		out.Schedule = make(Schedule, len(s.Schedule))
		for d, entry := range s.Schedule {
			out.Schedule[d] = copyItems(entry)
		}
	}
	return out
}

func copyItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
