// Package llm wraps the OpenAI-compatible chat completion endpoint used
// for plan classification, LLM re-planning and narrative generation. The
// model is treated as an untrusted oracle: structured responses are
// schema-checked by the callers before use.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// Config holds the LLM connection settings.
type Config struct {
	APIBase       string
	APIKey        string
	ModelMain     string
	ModelFallback string
	Timeout       time.Duration
}

// Client calls the chat completion API with a main/fallback model pair.
type Client struct {
	api openai.Client
	cfg Config
	log zerolog.Logger
}

// New builds the client. APIBase may point at any OpenAI-compatible
// gateway.
func New(cfg Config, log zerolog.Logger) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		api: openai.NewClient(opts...),
		cfg: cfg,
		log: log.With().Str("component", "llm").Logger(),
	}
}

// Complete runs one chat completion, trying the main model first and the
// fallback model on error.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	text, err := c.complete(ctx, c.cfg.ModelMain, system, user)
	if err == nil {
		return text, nil
	}
	if c.cfg.ModelFallback == "" || c.cfg.ModelFallback == c.cfg.ModelMain {
		return "", err
	}
	c.log.Warn().Err(err).Str("model", c.cfg.ModelMain).Msg("Main model failed, trying fallback")
	return c.complete(ctx, c.cfg.ModelFallback, system, user)
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion with %s returned no choices", model)
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON runs a completion that must return a single JSON document
// and decodes it into dst. Markdown code fences around the JSON are
// tolerated.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, dst any) error {
	text, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
		return fmt.Errorf("decode LLM JSON response: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
