package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/fairyhunter13/findajob/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/findajob/internal/adapter/observability"
	"github.com/fairyhunter13/findajob/internal/ai/tools"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// ollamaClient speaks the local Ollama HTTP API. The API has no native
// function calling on /api/generate, so agent mode is emulated: the tool
// manifest goes into the system prompt and the model answers either with a
// {"tool","arguments"} envelope or with the final document.
type ollamaClient struct {
	baseURL     string
	model       string
	temperature float32
	hc          *http.Client
	system      string
	history     []exchange
	reg         *tools.Registry
	counter     *tokencount.Counter
}

type exchange struct {
	prompt string
	reply  string
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// toolEnvelope is the emulated function-call reply shape.
type toolEnvelope struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

func newOllamaClient(ctx context.Context, cfg Config, reg *tools.Registry) (*ollamaClient, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	c := &ollamaClient{
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		hc:          &http.Client{Timeout: cfg.Timeout},
		reg:         reg,
		counter:     tokencount.NewCounter(),
	}
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// preflight lists the locally installed models and fails fast when the
// requested one is absent, instead of erroring on the first job.
func (c *ollamaClient) preflight(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable at %s: %v", domain.ErrConfig, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama tags returned %d", domain.ErrConfig, resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: decode tags: %v", domain.ErrConfig, err)
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q is not installed on %s", domain.ErrConfig, c.model, c.baseURL)
}

func (c *ollamaClient) ClearHistory() { c.history = nil }

func (c *ollamaClient) SetSystemPrompt(prompt string) { c.system = prompt }

func (c *ollamaClient) Generate(ctx context.Context, prompt string, format Format) (json.RawMessage, error) {
	defer observability.ObserveLLM(domain.ProviderOllama, "generate", time.Now())
	schema, err := json.Marshal(format.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal schema: %v", domain.ErrInternal, err)
	}

	fullPrompt := c.transcript() + prompt
	reply, err := c.complete(ctx, c.system, fullPrompt, schema)
	if err != nil {
		return nil, err
	}
	raw, checkErr := checkReply(reply, format)
	if checkErr != nil {
		slog.Warn("structured reply failed validation, regenerating",
			slog.String("provider", domain.ProviderOllama),
			slog.String("format", format.Name),
			slog.Any("error", checkErr))
		retryPrompt := fullPrompt + "\n\nPREVIOUS ATTEMPT:\n" + reply + "\n\n" + regenerationPrompt(format, checkErr)
		reply, err = c.complete(ctx, c.system, retryPrompt, schema)
		if err != nil {
			return nil, err
		}
		if raw, checkErr = checkReply(reply, format); checkErr != nil {
			return nil, checkErr
		}
	}

	c.history = append(c.history, exchange{prompt: prompt, reply: reply})
	c.logUsage(prompt, reply)
	return raw, nil
}

func (c *ollamaClient) Agent(ctx context.Context, prompt string, format Format) (json.RawMessage, error) {
	defer observability.ObserveLLM(domain.ProviderOllama, "agent", time.Now())
	system := c.system + "\n\n" + c.toolManifest()
	fullPrompt := c.transcript() + prompt

	for round := 0; round < maxToolRounds; round++ {
		// No format constraint during the tool phase: the model must be
		// free to emit either the envelope or the final document.
		reply, err := c.complete(ctx, system, fullPrompt, json.RawMessage(`"json"`))
		if err != nil {
			return nil, err
		}

		if env, ok := c.envelope(reply); ok {
			payload, dispatched := c.reg.Dispatch(env.Tool, env.Arguments)
			if !dispatched {
				slog.Warn("tool call rejected",
					slog.String("tool", env.Tool),
					slog.Any("response", payload))
			}
			result, _ := json.Marshal(payload)
			fullPrompt += fmt.Sprintf("\n\nTOOL CALL: %s\nTOOL RESULT: %s\nContinue. Call another tool or produce the final document.", env.Tool, result)
			continue
		}

		raw, checkErr := checkReply(reply, format)
		if checkErr != nil {
			slog.Warn("agent reply failed validation, regenerating",
				slog.String("provider", domain.ProviderOllama),
				slog.String("format", format.Name),
				slog.Any("error", checkErr))
			schema, _ := json.Marshal(format.Schema)
			retryPrompt := fullPrompt + "\n\nPREVIOUS ATTEMPT:\n" + reply + "\n\n" + regenerationPrompt(format, checkErr)
			reply, err = c.complete(ctx, c.system, retryPrompt, schema)
			if err != nil {
				return nil, err
			}
			if raw, checkErr = checkReply(reply, format); checkErr != nil {
				return nil, checkErr
			}
		}
		c.history = append(c.history, exchange{prompt: prompt, reply: reply})
		c.logUsage(prompt, reply)
		return raw, nil
	}
	return nil, fmt.Errorf("%w: tool loop exceeded %d rounds", domain.ErrToolCall, maxToolRounds)
}

func (c *ollamaClient) complete(ctx context.Context, system, prompt string, format json.RawMessage) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		System:  system,
		Prompt:  prompt,
		Stream:  false,
		Format:  format,
		Options: map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLLMTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLLMTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: ollama generate returned %d: %s", domain.ErrLLMTransport, resp.StatusCode, snippet)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode generate response: %v", domain.ErrLLMTransport, err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrLLMTransport)
	}
	return out.Response, nil
}

// envelope reports whether the reply is a tool-call envelope.
func (c *ollamaClient) envelope(reply string) (toolEnvelope, bool) {
	raw, err := extractJSON(reply)
	if err != nil {
		return toolEnvelope{}, false
	}
	var env toolEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Tool == "" {
		return toolEnvelope{}, false
	}
	return env, true
}

func (c *ollamaClient) toolManifest() string {
	var b strings.Builder
	b.WriteString("You can call the following tools. To call one, reply with only ")
	b.WriteString(`{"tool": "<name>", "arguments": {...}} and nothing else. `)
	b.WriteString("The tool result comes back in the next message. When you have every score you need, reply with the final JSON document instead.\n\nTOOLS:\n")
	for _, d := range c.reg.Declarations() {
		params, _ := json.Marshal(d.Parameters)
		fmt.Fprintf(&b, "- %s: %s\n  arguments schema: %s\n", d.Name, d.Description, params)
	}
	return b.String()
}

// transcript replays prior exchanges so the stateless generate endpoint sees
// the conversation history.
func (c *ollamaClient) transcript() string {
	if len(c.history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range c.history {
		b.WriteString("USER:\n")
		b.WriteString(e.prompt)
		b.WriteString("\nASSISTANT:\n")
		b.WriteString(e.reply)
		b.WriteString("\n\n")
	}
	return b.String()
}

func (c *ollamaClient) logUsage(prompt, reply string) {
	usage, err := c.counter.CalculateUsage(c.system, prompt, reply, c.model, domain.ProviderOllama)
	if err != nil {
		return
	}
	slog.Debug("llm call",
		slog.String("provider", domain.ProviderOllama),
		slog.String("model", c.model),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Int("total_tokens", usage.TotalTokens))
}

var _ Client = (*ollamaClient)(nil)
var _ Client = (*googleClient)(nil)
