package domain

// Hand-written JSON schemas for the structured LLM outputs. They live next to
// the record definitions so the two can be checked for drift in tests
// (see schemas_test.go). The maps are in the subset of JSON Schema that both
// the Gemini response_schema and the Ollama format parameter accept.

func scoreProperty() map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "maximum": 100}
}

// AlignmentScoreSchema describes the six-component alignment record. A bare
// integer (the legacy 1-5 alignment level) does not satisfy it.
func AlignmentScoreSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"total":      scoreProperty(),
			"skills":     scoreProperty(),
			"education":  scoreProperty(),
			"experience": scoreProperty(),
			"location":   scoreProperty(),
			"industries": scoreProperty(),
			"languages":  scoreProperty(),
		},
		"required": []string{"total", "skills", "education", "experience", "location", "industries", "languages"},
	}
}

// JobSummarySchema is the response schema for the agent-mode job summary.
func JobSummarySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"responsibilities": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
				"maxItems": 8,
			},
			"requirements": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
				"maxItems": 8,
			},
			"opportunity_interest": map[string]any{"type": "string"},
			"background_aligns":    AlignmentScoreSchema(),
			"summary":              map[string]any{"type": "string"},
		},
		"required": []string{"responsibilities", "requirements", "opportunity_interest", "background_aligns", "summary"},
	}
}

// CoverLetterSchema is the response schema for generate-mode cover letters.
func CoverLetterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject":        map[string]any{"type": "string"},
			"letter_content": map[string]any{"type": "string"},
		},
		"required": []string{"subject", "letter_content"},
	}
}
