// Package ai implements the provider-polymorphic LLM client used during
// enrichment. Both providers share one contract: a per-job conversation with
// a replaceable system prompt, a structured generate call, and a tool-backed
// agent call. Google is served by the genai SDK with native function calling;
// Ollama speaks the local HTTP API with an emulated tool envelope.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairyhunter13/findajob/internal/ai/tools"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// Default connection settings applied when the submit payload leaves them out.
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultTemperature   = 0.2

	// maxToolRounds bounds the agent loop so a model that keeps calling
	// tools cannot spin past the task deadline.
	maxToolRounds = 16
)

// Client is one enrichment conversation. Implementations are not safe for
// concurrent use; the pipeline drives one client per run, one job at a time.
type Client interface {
	// ClearHistory drops the conversation so the next call starts fresh.
	ClearHistory()
	// SetSystemPrompt replaces the system prompt for subsequent calls.
	SetSystemPrompt(prompt string)
	// Generate runs one structured completion constrained to format and
	// returns the validated JSON document. A schema violation triggers a
	// single regeneration before the call fails with ErrSchemaInvalid.
	Generate(ctx context.Context, prompt string, format Format) (json.RawMessage, error)
	// Agent runs the tool loop: the model may call the registered tools any
	// number of times (bounded) before producing a document matching format.
	Agent(ctx context.Context, prompt string, format Format) (json.RawMessage, error)
}

// Config carries the per-run provider settings from the submit payload.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// New builds a Client for the requested provider. Provider and connection
// settings are validated here so a bad submit payload fails the run before
// any job is enriched.
func New(ctx context.Context, cfg Config, reg *tools.Registry) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", domain.ErrConfig)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	switch cfg.Provider {
	case domain.ProviderGoogle:
		return newGoogleClient(ctx, cfg, reg)
	case domain.ProviderOllama:
		return newOllamaClient(ctx, cfg, reg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrConfig, cfg.Provider)
	}
}
