// Package tokencount estimates token usage for LLM calls with tiktoken-go.
// Neither provider reports usage on every call path, so the pipeline counts
// locally for logging and cost tracking. Counts for Gemini and llama-family
// models are approximations over the cl100k_base encoding.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// The embedded dictionary keeps counting off the network; the default loader
// fetches the BPE ranks from the internet on first use.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenUsage is the token breakdown for one LLM call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// Counter caches encodings per model and is safe for concurrent use.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps provider model IDs to tiktoken-known names.
// Gemini, llama, qwen and friends tokenize close enough to cl100k_base for
// logging purposes.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)

	// Ollama model IDs carry a tag: "llama3.2:3b".
	if i := strings.IndexByte(model, ':'); i >= 0 {
		model = model[:i]
	}

	switch {
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountTokens counts the tokens in text for the given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts prompt tokens for a system+user exchange, including
// the per-message framing overhead chat APIs add.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encodingForModel(model)
	if err != nil {
		return 0, err
	}

	const tokensPerMessage = 3
	const tokensPerRole = 1

	numTokens := 0
	numTokens += tokensPerMessage + tokensPerRole
	numTokens += len(enc.Encode("system", nil, nil))
	numTokens += len(enc.Encode(systemPrompt, nil, nil))
	numTokens += tokensPerMessage + tokensPerRole
	numTokens += len(enc.Encode("user", nil, nil))
	numTokens += len(enc.Encode(userPrompt, nil, nil))
	// Reply priming.
	numTokens += 3

	return numTokens, nil
}

// CalculateUsage computes the full usage record for one call. Counting
// errors degrade to a 4-chars-per-token estimate instead of failing the call.
func (c *Counter) CalculateUsage(systemPrompt, userPrompt, completion, model, provider string) (*TokenUsage, error) {
	promptTokens, err := c.CountChatTokens(systemPrompt, userPrompt, model)
	if err != nil {
		promptTokens = (len(systemPrompt) + len(userPrompt)) / 4
	}
	completionTokens, err := c.CountTokens(completion, model)
	if err != nil {
		completionTokens = len(completion) / 4
	}
	return &TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            model,
		Provider:         provider,
	}, nil
}
