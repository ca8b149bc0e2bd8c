// Package llm implements LLMGateway: a single-prompt, JSON-mode chat
// completion call with a request timeout and classified failure modes
// (spec §4.3), backed by github.com/openai/openai-go.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Kind classifies a Gateway failure so callers (LLMUpdateAgent, the
// bootstrap path) can decide how to fall back without inspecting error
// strings.
type Kind string

const (
	KindTimeout   Kind = "LLMTimeout"
	KindTransport Kind = "LLMTransport"
	KindFormat    Kind = "LLMFormat"
)

// Error wraps a Gateway failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Gateway is the single-operation LLM client: generate(prompt) -> text.
// It never retries internally — the caller (LLMUpdateAgent's fallback
// chain) decides what to do on failure.
type Gateway struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// Config configures a Gateway.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// New builds a Gateway from cfg.
func New(cfg Config) *Gateway {
	// MaxRetries(0): the gateway contract is explicitly "never retries
	// internally" (spec §4.3) — the caller's fallback chain decides what
	// happens next, so the SDK's own retry-on-5xx behavior is disabled.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Gateway{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// GenerateOptions configures a single Generate call.
type GenerateOptions struct {
	SystemMessage string
	MaxTokens     int
	Temperature   float64
	JSONMode      bool
}

// Generate issues a single-shot chat completion. Requests JSON-only output
// when opts.JSONMode is set. Never retries: on timeout returns KindTimeout,
// on any other transport/API error returns KindTransport, and on a non-JSON
// body when JSON mode was requested returns KindFormat.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if opts.SystemMessage != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemMessage))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
		return "", &Error{Kind: KindTransport, Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", &Error{Kind: KindFormat, Err: errors.New("no choices in completion")}
	}

	text := completion.Choices[0].Message.Content
	if opts.JSONMode && !looksLikeJSON(text) {
		return "", &Error{Kind: KindFormat, Err: fmt.Errorf("response body is not JSON")}
	}
	return text, nil
}

func looksLikeJSON(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
