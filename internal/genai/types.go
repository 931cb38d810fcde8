package genai

// Part is one piece of message content. Only text parts are used.
type Part struct {
	Text string `json:"text"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Schema describes a structured JSON output shape (OpenAPI subset).
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// GenerationConfig selects either structured JSON output or sampling parameters.
type GenerationConfig struct {
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema  `json:"responseSchema,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
}

// GenerateRequest is the JSON body for POST {model}:generateContent.
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Candidate is one generated alternative.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GenerateResponse mirrors the parts of the generateContent response we read.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// FinishReasonSafety marks a candidate withheld by content filtering.
const FinishReasonSafety = "SAFETY"

// Text returns candidates[0].content.parts[0].text, or "" when absent.
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

// Blocked reports whether the first candidate was stopped by safety filters.
func (r *GenerateResponse) Blocked() bool {
	return r != nil && len(r.Candidates) > 0 && r.Candidates[0].FinishReason == FinishReasonSafety
}

// UserText builds a single-turn user prompt.
func UserText(text string) []Content {
	return []Content{{Role: "user", Parts: []Part{{Text: text}}}}
}

// Instruction builds a system instruction. Empty text yields nil.
func Instruction(text string) *Content {
	if text == "" {
		return nil
	}
	return &Content{Parts: []Part{{Text: text}}}
}

// Temperature returns a pointer suitable for GenerationConfig.Temperature.
func Temperature(v float64) *float64 {
	return &v
}
