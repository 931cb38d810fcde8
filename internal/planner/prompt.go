package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/cramplan/internal/genai"
)

// AnswerKeySeparator is the line dividing practice questions from answers.
const AnswerKeySeparator = "--- ANSWER KEY ---"

const practiceTestTemperature = 0.7

const studyPlanInstruction = `You are a study coach. Build a spaced-repetition study plan that ends on the test date. Spread topics across sessions, revisit difficult material at increasing intervals, and keep the final session for light review. Respond only with JSON matching the provided schema.`

const practiceTestInstruction = `You are an exam writer. Write a practice test covering the study materials: a mix of multiple-choice and short-answer questions, numbered. After the last question write a line containing exactly "` + AnswerKeySeparator + `" and then the numbered answers with a one-sentence explanation each. Do not use that line anywhere else.`

func buildUserPrompt(kind string, f Form, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a %s.\n\n", kind)
	fmt.Fprintf(&sb, "Test: %s\n", strings.TrimSpace(f.TestName))
	fmt.Fprintf(&sb, "Test date: %s\n", strings.TrimSpace(f.TestDate))
	fmt.Fprintf(&sb, "Today: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Days until test: %d\n\n", f.DaysUntil(now))
	sb.WriteString("Study materials:\n")
	sb.WriteString(strings.TrimSpace(f.Materials))
	return sb.String()
}

func studyPlanRequest(f Form, now time.Time) genai.GenerateRequest {
	return genai.GenerateRequest{
		Contents:          genai.UserText(buildUserPrompt("study plan", f, now)),
		SystemInstruction: genai.Instruction(studyPlanInstruction),
		GenerationConfig: &genai.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   studyPlanSchema(),
		},
	}
}

func practiceTestRequest(f Form, now time.Time) genai.GenerateRequest {
	return genai.GenerateRequest{
		Contents:          genai.UserText(buildUserPrompt("practice test", f, now)),
		SystemInstruction: genai.Instruction(practiceTestInstruction),
		GenerationConfig: &genai.GenerationConfig{
			Temperature: genai.Temperature(practiceTestTemperature),
		},
	}
}

// studyPlanSchema mirrors StudyPlan.
func studyPlanSchema() *genai.Schema {
	return &genai.Schema{
		Type: "object",
		Properties: map[string]*genai.Schema{
			"studySessions": {
				Type: "array",
				Items: &genai.Schema{
					Type: "object",
					Properties: map[string]*genai.Schema{
						"date":              {Type: "string", Description: "Session date, YYYY-MM-DD"},
						"topics":            {Type: "array", Items: &genai.Schema{Type: "string"}},
						"estimatedDuration": {Type: "string", Description: "e.g. 45 minutes"},
					},
					Required: []string{"date", "topics", "estimatedDuration"},
				},
			},
			"rationale": {Type: "string", Description: "Why the sessions are spaced this way"},
		},
		Required: []string{"studySessions", "rationale"},
	}
}
