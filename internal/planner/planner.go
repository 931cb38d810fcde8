package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/cramplan/internal/genai"
	"github.com/kalambet/cramplan/internal/storage"
)

// ErrMalformedPracticeTest is returned when generated text does not contain
// exactly one answer key separator line.
var ErrMalformedPracticeTest = errors.New("planner: practice test must contain exactly one answer key separator")

// Generator performs one logical generate call. Implemented by genai.Client.
type Generator interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResponse, error)
	Model() string
}

// Recorder stores finished generations. Implemented by storage.Store.
type Recorder interface {
	SaveGeneration(g storage.Generation) error
}

// StudySession is one planned sitting.
type StudySession struct {
	Date              string   `json:"date"`
	Topics            []string `json:"topics"`
	EstimatedDuration string   `json:"estimatedDuration"`
}

// StudyPlan is the structured study plan result.
type StudyPlan struct {
	StudySessions []StudySession `json:"studySessions"`
	Rationale     string         `json:"rationale"`
}

// PracticeTest is a generated test split at the answer key separator.
type PracticeTest struct {
	Questions string `json:"questions"`
	AnswerKey string `json:"answerKey"`
}

// Planner turns forms into generate requests and shapes the results.
type Planner struct {
	gen      Generator
	recorder Recorder
	now      func() time.Time
}

// New creates a Planner. recorder may be nil to skip history.
func New(gen Generator, recorder Recorder) *Planner {
	return &Planner{gen: gen, recorder: recorder, now: time.Now}
}

// StudyPlan validates f, requests a JSON study plan and decodes it.
func (p *Planner) StudyPlan(ctx context.Context, f Form) (StudyPlan, error) {
	now := p.now()
	if err := f.Validate(now); err != nil {
		return StudyPlan{}, err
	}

	req := studyPlanRequest(f, now)
	resp, err := p.gen.Generate(ctx, req)
	if err != nil {
		return StudyPlan{}, fmt.Errorf("generating study plan: %w", err)
	}

	text := resp.Text()
	var plan StudyPlan
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &plan); err != nil {
		return StudyPlan{}, fmt.Errorf("decoding study plan: %w", err)
	}

	p.record(storage.KindStudyPlan, f, req, text, now)
	return plan, nil
}

// PracticeTest validates f, requests a free-text practice test and splits it.
func (p *Planner) PracticeTest(ctx context.Context, f Form) (PracticeTest, error) {
	now := p.now()
	if err := f.Validate(now); err != nil {
		return PracticeTest{}, err
	}

	req := practiceTestRequest(f, now)
	resp, err := p.gen.Generate(ctx, req)
	if err != nil {
		return PracticeTest{}, fmt.Errorf("generating practice test: %w", err)
	}

	text := resp.Text()
	test, err := SplitPracticeTest(text)
	if err != nil {
		return PracticeTest{}, err
	}

	p.record(storage.KindPracticeTest, f, req, text, now)
	return test, nil
}

// SplitPracticeTest divides text on the single line equal to
// AnswerKeySeparator (surrounding whitespace ignored).
func SplitPracticeTest(text string) (PracticeTest, error) {
	lines := strings.Split(text, "\n")
	at := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != AnswerKeySeparator {
			continue
		}
		if at >= 0 {
			return PracticeTest{}, fmt.Errorf("%w: found more than one", ErrMalformedPracticeTest)
		}
		at = i
	}
	if at < 0 {
		return PracticeTest{}, fmt.Errorf("%w: none found", ErrMalformedPracticeTest)
	}
	return PracticeTest{
		Questions: strings.TrimSpace(strings.Join(lines[:at], "\n")),
		AnswerKey: strings.TrimSpace(strings.Join(lines[at+1:], "\n")),
	}, nil
}

// record saves a generation. Failures are logged, not returned.
func (p *Planner) record(kind string, f Form, req genai.GenerateRequest, output string, now time.Time) {
	if p.recorder == nil {
		return
	}
	var prompt string
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		prompt = req.Contents[0].Parts[0].Text
	}
	g := storage.Generation{
		ID:        uuid.New().String(),
		Kind:      kind,
		TestName:  strings.TrimSpace(f.TestName),
		TestDate:  strings.TrimSpace(f.TestDate),
		Model:     p.gen.Model(),
		Prompt:    prompt,
		Output:    output,
		CreatedAt: now.UTC(),
	}
	if err := p.recorder.SaveGeneration(g); err != nil {
		slog.Warn("failed to record generation", "kind", kind, "error", err)
	}
}

// stripCodeFence removes a ```json fence some models wrap JSON output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
