// Package schedule expands a list of study items into a fixed-offset review
// calendar bounded by a test date, and tracks per-date completion.
//
// All functions are pure: they take a State (or its inputs) and return a new
// State. Persisting the result is the caller's job.
//
//	st, err := schedule.Generate(time.Now(), "2026-11-20", []string{"mitosis", "meiosis"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	st, err = schedule.ToggleDone(st, st.Dates()[0], "card-0")
package schedule
