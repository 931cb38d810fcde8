package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/cramplan/internal/genai"
	"github.com/kalambet/cramplan/internal/materials"
	"github.com/kalambet/cramplan/internal/planner"
	"github.com/kalambet/cramplan/internal/schedule"
	"github.com/kalambet/cramplan/internal/session"
	"github.com/kalambet/cramplan/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Planner produces generated study aids. Implemented by planner.Planner.
type Planner interface {
	StudyPlan(ctx context.Context, f planner.Form) (planner.StudyPlan, error)
	PracticeTest(ctx context.Context, f planner.Form) (planner.PracticeTest, error)
}

// MaterialsLoader fetches materials text from a web page. Implemented by
// materials.Loader. Local paths are never resolved over the API.
type MaterialsLoader interface {
	FromURL(ctx context.Context, url string) (string, error)
}

type AppDeps struct {
	Session   *session.Manager
	Planner   Planner // optional; nil disables /plan and /practice-test
	Store     *storage.Store
	Materials MaterialsLoader // optional; nil rejects requests that set source
	Guard     *Guard
}

// FormRequest is the body of POST /plan and POST /practice-test.
type FormRequest struct {
	TestName  string `json:"testName"`
	TestDate  string `json:"testDate"`
	Materials string `json:"materials"`
	Source    string `json:"source"` // URL or local path appended to materials
}

// ScheduleRequest is the body of POST /schedule.
type ScheduleRequest struct {
	TestDate  string `json:"testDate"`
	Materials string `json:"materials"`
	Source    string `json:"source"`
}

// ToggleRequest is the body of POST /schedule/toggle.
type ToggleRequest struct {
	Date string `json:"date"`
	ID   string `json:"id"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Guard == nil {
		deps.Guard = NewGuard()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/schedule", handleGetSchedule(deps))
	r.Post("/schedule", handleGenerateSchedule(deps))
	r.Post("/schedule/toggle", handleToggle(deps))
	r.Post("/plan", handleStudyPlan(deps))
	r.Post("/practice-test", handlePracticeTest(deps))
	r.Get("/generations", handleListGenerations(deps))
	r.Get("/generations/{id}", handleGetGeneration(deps))
	r.Delete("/generations/{id}", handleDeleteGeneration(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleGetSchedule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Session.Load()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load schedule: %v", err)
			return
		}
		writeJSON(w, st)
	}
}

func handleGenerateSchedule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		materials, err := resolveMaterials(r.Context(), deps.Materials, req.Materials, req.Source)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		st, err := deps.Session.Generate(req.TestDate, materials)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleToggle(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ToggleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Date == "" || req.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "date and id are required")
			return
		}

		st, err := deps.Session.Toggle(req.Date, req.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleStudyPlan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := readForm(w, r, deps)
		if !ok {
			return
		}

		var plan planner.StudyPlan
		err := deps.Guard.Do(func() error {
			var err error
			plan, err = deps.Planner.StudyPlan(r.Context(), form)
			return err
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, plan)
	}
}

func handlePracticeTest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := readForm(w, r, deps)
		if !ok {
			return
		}

		var test planner.PracticeTest
		err := deps.Guard.Do(func() error {
			var err error
			test, err = deps.Planner.PracticeTest(r.Context(), form)
			return err
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, test)
	}
}

func readForm(w http.ResponseWriter, r *http.Request, deps AppDeps) (planner.Form, bool) {
	if deps.Planner == nil {
		httpError(w, http.StatusServiceUnavailable, "api_error", "generation not available: no API key configured")
		return planner.Form{}, false
	}

	var req FormRequest
	if !decodeBody(w, r, &req) {
		return planner.Form{}, false
	}

	materials, err := resolveMaterials(r.Context(), deps.Materials, req.Materials, req.Source)
	if err != nil {
		writeDomainError(w, err)
		return planner.Form{}, false
	}
	return planner.Form{TestName: req.TestName, TestDate: req.TestDate, Materials: materials}, true
}

func handleListGenerations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		kind := r.URL.Query().Get("kind")

		gens, err := deps.Store.ListGenerations(kind, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list generations: %v", err)
			return
		}
		if gens == nil {
			gens = []storage.Generation{}
		}
		writeJSON(w, gens)
	}
}

func handleGetGeneration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		g, err := deps.Store.GetGeneration(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get generation: %v", err)
			return
		}
		writeJSON(w, g)
	}
}

func handleDeleteGeneration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteGeneration(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete generation: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// resolveMaterials joins inline materials with the text loaded from source.
func resolveMaterials(ctx context.Context, loader MaterialsLoader, inline, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return inline, nil
	}
	if !materials.IsURL(source) {
		return "", &planner.ValidationError{Field: "source", Message: "must be an http or https URL"}
	}
	if loader == nil {
		return "", &planner.ValidationError{Field: "source", Message: "loading sources is not enabled"}
	}
	loaded, err := loader.FromURL(ctx, source)
	if err != nil {
		return "", &planner.ValidationError{Field: "source", Message: err.Error()}
	}
	if strings.TrimSpace(inline) == "" {
		return loaded, nil
	}
	return strings.TrimRight(inline, "\n") + "\n" + loaded, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// writeDomainError maps package errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *planner.ValidationError
	var se *genai.StatusError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, schedule.ErrInvalidDate),
		errors.Is(err, schedule.ErrNoItems):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, schedule.ErrUnknownDate), errors.Is(err, schedule.ErrUnknownItem):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, ErrBusy):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, genai.ErrSafetyBlocked),
		errors.Is(err, genai.ErrEmptyResponse),
		errors.Is(err, planner.ErrMalformedPracticeTest),
		errors.As(err, &se):
		httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
