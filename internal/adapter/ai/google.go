package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"google.golang.org/genai"

	"github.com/fairyhunter13/findajob/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/findajob/internal/adapter/observability"
	"github.com/fairyhunter13/findajob/internal/ai/tools"
	"github.com/fairyhunter13/findajob/internal/domain"
)

// googleClient drives the Gemini API through the genai SDK. Agent mode uses
// native function calling; generate mode constrains the response with a JSON
// schema.
type googleClient struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	system      string
	history     []*genai.Content
	reg         *tools.Registry
	counter     *tokencount.Counter
}

func newGoogleClient(ctx context.Context, cfg Config, reg *tools.Registry) (*googleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: google provider requires an api key", domain.ErrConfig)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: genai client: %v", domain.ErrConfig, err)
	}
	return &googleClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		reg:         reg,
		counter:     tokencount.NewCounter(),
	}, nil
}

func (c *googleClient) ClearHistory() { c.history = nil }

func (c *googleClient) SetSystemPrompt(prompt string) { c.system = prompt }

func (c *googleClient) Generate(ctx context.Context, prompt string, format Format) (json.RawMessage, error) {
	defer observability.ObserveLLM(domain.ProviderGoogle, "generate", time.Now())
	contents := append(c.snapshot(), genai.NewContentFromText(prompt, genai.RoleUser))

	reply, err := c.call(ctx, contents, c.structuredConfig(format))
	if err != nil {
		return nil, err
	}
	raw, checkErr := checkReply(reply, format)
	if checkErr != nil {
		slog.Warn("structured reply failed validation, regenerating",
			slog.String("provider", domain.ProviderGoogle),
			slog.String("format", format.Name),
			slog.Any("error", checkErr))
		contents = append(contents,
			genai.NewContentFromText(reply, genai.RoleModel),
			genai.NewContentFromText(regenerationPrompt(format, checkErr), genai.RoleUser))
		reply, err = c.call(ctx, contents, c.structuredConfig(format))
		if err != nil {
			return nil, err
		}
		if raw, checkErr = checkReply(reply, format); checkErr != nil {
			return nil, checkErr
		}
	}

	c.remember(prompt, reply)
	c.logUsage(prompt, reply)
	return raw, nil
}

func (c *googleClient) Agent(ctx context.Context, prompt string, format Format) (json.RawMessage, error) {
	defer observability.ObserveLLM(domain.ProviderGoogle, "agent", time.Now())
	contents := append(c.snapshot(), genai.NewContentFromText(prompt, genai.RoleUser))

	cfg := c.baseConfig()
	cfg.Tools = []*genai.Tool{{FunctionDeclarations: c.declarations()}}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.generate(ctx, contents, cfg)
		if err != nil {
			return nil, err
		}
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			reply := responseText(resp)
			raw, checkErr := checkReply(reply, format)
			if checkErr != nil {
				slog.Warn("agent reply failed validation, regenerating",
					slog.String("provider", domain.ProviderGoogle),
					slog.String("format", format.Name),
					slog.Any("error", checkErr))
				contents = append(contents,
					genai.NewContentFromText(reply, genai.RoleModel),
					genai.NewContentFromText(regenerationPrompt(format, checkErr), genai.RoleUser))
				reply, err = c.call(ctx, contents, c.structuredConfig(format))
				if err != nil {
					return nil, err
				}
				if raw, checkErr = checkReply(reply, format); checkErr != nil {
					return nil, checkErr
				}
			}
			c.remember(prompt, reply)
			c.logUsage(prompt, reply)
			return raw, nil
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			payload, ok := c.reg.Dispatch(call.Name, call.Args)
			if !ok {
				slog.Warn("tool call rejected",
					slog.String("tool", call.Name),
					slog.Any("response", payload))
			}
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, payload))
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}
	return nil, fmt.Errorf("%w: tool loop exceeded %d rounds", domain.ErrToolCall, maxToolRounds)
}

func (c *googleClient) declarations() []*genai.FunctionDeclaration {
	decls := c.reg.Declarations()
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		out = append(out, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.Parameters,
		})
	}
	return out
}

func (c *googleClient) baseConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(c.temperature)}
	if c.system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}
	return cfg
}

func (c *googleClient) structuredConfig(format Format) *genai.GenerateContentConfig {
	cfg := c.baseConfig()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseJsonSchema = format.Schema
	return cfg
}

// call runs one completion and flattens the reply to text.
func (c *googleClient) call(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.generate(ctx, contents, cfg)
	if err != nil {
		return "", err
	}
	reply := responseText(resp)
	if reply == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrLLMTransport)
	}
	return reply, nil
}

func (c *googleClient) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.Models.GenerateContent(callCtx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLLMTransport, err)
	}
	return resp, nil
}

func (c *googleClient) snapshot() []*genai.Content {
	out := make([]*genai.Content, len(c.history))
	copy(out, c.history)
	return out
}

func (c *googleClient) remember(prompt, reply string) {
	c.history = append(c.history,
		genai.NewContentFromText(prompt, genai.RoleUser),
		genai.NewContentFromText(reply, genai.RoleModel))
}

func (c *googleClient) logUsage(prompt, reply string) {
	usage, err := c.counter.CalculateUsage(c.system, prompt, reply, c.model, domain.ProviderGoogle)
	if err != nil {
		return
	}
	slog.Debug("llm call",
		slog.String("provider", domain.ProviderGoogle),
		slog.String("model", c.model),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Int("total_tokens", usage.TotalTokens))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func checkReply(reply string, format Format) (json.RawMessage, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	if err := format.Check(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func regenerationPrompt(format Format, cause error) string {
	schema, _ := json.Marshal(format.Schema)
	return fmt.Sprintf(
		"The previous reply was rejected: %v. Respond again with only a JSON document matching this schema, no prose and no markdown fences:\n%s",
		cause, schema)
}
