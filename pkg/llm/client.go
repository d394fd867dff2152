// Package llm wraps the Anthropic API behind the single extraction call the
// pipeline needs.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sellerdata/ingest-cli/internal/apperr"
)

// Client defines the LLM operation used by the extraction driver.
type Client interface {
	// Extract asks the model to pull the named fields out of a serialized
	// product payload, returning the parsed JSON object and token usage.
	Extract(ctx context.Context, payload string, fields []string) (map[string]any, Usage, error)
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns the summed token count.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Cost computes the dollar cost at a per-1k-token rate.
func (u Usage) Cost(per1k float64) float64 {
	return float64(u.Total()) / 1000.0 * per1k
}

const systemInstruction = "You are a product feature expert. Extract the requested fields " +
	"from the product data and respond with a single JSON object whose keys are " +
	"exactly the requested field names. Use null for any field you cannot determine. " +
	"Respond with JSON only."

// Option configures the SDK client.
type Option func(*sdkClient)

// WithBaseURL points the client at a custom endpoint (for testing or proxies).
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.requestOpts = append(c.requestOpts, option.WithBaseURL(url))
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *sdkClient) {
		c.maxTokens = n
	}
}

type sdkClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	requestOpts []option.RequestOption
}

// NewClient creates an extraction client backed by the Anthropic SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		model:       "claude-haiku-4-5-20251001",
		maxTokens:   1024,
		requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = sdk.NewClient(c.requestOpts...)
	return c
}

func (c *sdkClient) Extract(ctx context.Context, payload string, fields []string) (map[string]any, Usage, error) {
	prompt := "Fields to extract: " + strings.Join(fields, ", ") + "\n\nProduct data:\n" + payload

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, Usage{}, eris.Wrap(err, "llm: create message")
	}

	usage := Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	parsed, err := ParseJSONObject(text.String())
	if err != nil {
		return nil, usage, err
	}
	return parsed, usage, nil
}

// ParseJSONObject locates and decodes the first balanced JSON object in the
// text, tolerating surrounding prose or markdown fences.
func ParseJSONObject(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, apperr.New(apperr.CodeLLM, "response contains no JSON object")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var out map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &out); err != nil {
					return nil, apperr.Wrap(eris.Wrap(err, "llm: decode object"), apperr.CodeLLM, "response JSON is malformed")
				}
				return out, nil
			}
		}
	}

	return nil, apperr.New(apperr.CodeLLM, "response JSON object is unterminated")
}
