package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/findajob/internal/domain"
	"github.com/fairyhunter13/findajob/internal/scoring"
)

// Format names a structured output and knows how to check a raw model reply
// against it. Schema is the JSON schema handed to the provider (Gemini
// response schema, Ollama format parameter); Check is the server-side
// validation that runs regardless of what the provider enforced.
type Format struct {
	Name   string
	Schema map[string]any
	Check  func(raw json.RawMessage) error
}

var formatValidator = validator.New(validator.WithRequiredStructEnabled())

// totalTolerance allows the model's weighted total to differ from the
// recomputed one by a single rounding step.
const totalTolerance = 1

// maxCoverLetterWords caps the letter body. Prompting alone does not hold
// every model to it, so the cap is enforced at validation time.
const maxCoverLetterWords = 400

// JobSummaryFormat validates the agent-mode summary record, including the
// structured alignment breakdown and its recomputable total.
func JobSummaryFormat() Format {
	return Format{
		Name:   "job_summary",
		Schema: domain.JobSummarySchema(),
		Check: func(raw json.RawMessage) error {
			var s domain.JobSummary
			if err := strictUnmarshal(raw, &s); err != nil {
				return err
			}
			if err := formatValidator.Struct(s); err != nil {
				return fmt.Errorf("%w: job summary: %v", domain.ErrSchemaInvalid, err)
			}
			return checkAlignment(s.BackgroundAligns)
		},
	}
}

// CoverLetterFormat validates the generate-mode cover letter record.
func CoverLetterFormat() Format {
	return Format{
		Name:   "cover_letter",
		Schema: domain.CoverLetterSchema(),
		Check: func(raw json.RawMessage) error {
			var c domain.CoverLetter
			if err := strictUnmarshal(raw, &c); err != nil {
				return err
			}
			if err := formatValidator.Struct(c); err != nil {
				return fmt.Errorf("%w: cover letter: %v", domain.ErrSchemaInvalid, err)
			}
			if words := len(strings.Fields(c.LetterContent)); words > maxCoverLetterWords {
				return fmt.Errorf("%w: cover letter runs %d words, limit is %d", domain.ErrSchemaInvalid, words, maxCoverLetterWords)
			}
			return nil
		},
	}
}

func checkAlignment(a domain.AlignmentScore) error {
	if err := formatValidator.Struct(a); err != nil {
		return fmt.Errorf("%w: alignment score: %v", domain.ErrSchemaInvalid, err)
	}
	want := scoring.Overall(a.Skills, a.Education, a.Experience, a.Location, a.Industries, a.Languages)
	diff := a.Total - want
	if diff < 0 {
		diff = -diff
	}
	if diff > totalTolerance {
		return fmt.Errorf("%w: alignment total %d does not match weighted components (want %d)", domain.ErrSchemaInvalid, a.Total, want)
	}
	return nil
}

// strictUnmarshal decodes raw into v, rejecting unknown fields and trailing
// content. Models that reply with the legacy integer alignment level, extra
// keys, or concatenated documents all fail here.
func strictUnmarshal(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing content after document", domain.ErrSchemaInvalid)
	}
	return nil
}

// extractJSON trims a model reply down to the JSON document inside it.
// Ollama without a format constraint and Gemini in text mode both like to
// wrap JSON in markdown fences or prose.
func extractJSON(reply string) (json.RawMessage, error) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON document in reply", domain.ErrSchemaInvalid)
	}
	s = s[start:]
	var probe any
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&probe); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	return json.RawMessage(s[:dec.InputOffset()]), nil
}
