// Package genai wraps an OpenAI-compatible endpoint (OpenRouter works too)
// behind the Completer and Embedder contracts. Every call runs through the
// resilience caller for its dependency class.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/pkg/resilience"
)

type Config struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" required:"true"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	MaxCompletionTokens int           `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"2000"`
	Temperature         float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL             string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName            string        `envconfig:"SITE_NAME" split_words:"true"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: genai api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: genai model is required", contractx.ErrValidation)
	}
	return nil
}

// Pricing estimate used for cost logging only.
const estimatedUSDPerToken = 0.00002

type Client struct {
	api    openaisdk.Client
	caller *resilience.Caller
	cfg    Config
}

var (
	_ contractx.Completer = (*Client)(nil)
	_ contractx.Embedder  = (*Client)(nil)
)

func New(cfg Config, caller *resilience.Caller) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	return &Client{
		api:    openaisdk.NewClient(opts...),
		caller: caller,
		cfg:    cfg,
	}, nil
}

// Complete sends a free-form prompt and returns the raw text reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "complete", prompt, nil, "")
}

// CompleteJSON forces a strict JSON-schema response format and decodes the
// reply into out. Decode failures wrap ErrSchemaViolation so callers can
// apply their documented fallbacks.
func (c *Client) CompleteJSON(ctx context.Context, name string, prompt string, schema map[string]any, out any) error {
	text, err := c.complete(ctx, name, prompt, schema, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: decode %s output: %v", contractx.ErrSchemaViolation, name, err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, op string, prompt string, schema map[string]any, schemaName string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
		MaxTokens:   openaisdk.Int(int64(c.cfg.MaxCompletionTokens)),
		Temperature: openaisdk.Float(c.cfg.Temperature),
	}
	if schema != nil {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openaisdk.Bool(true),
				},
			},
		}
	}

	text, err := resilience.Do(ctx, c.caller, resilience.ClassLLM, op, func(ctx context.Context) (string, error) {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			// Double-wrap so the transport cause stays in the chain and the
			// retry predicate can still see timeouts and refused connections.
			return "", fmt.Errorf("%w: %s: %w", contractx.ErrModelInvoke, op, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: %s returned no choices", contractx.ErrModelInvoke, op)
		}

		tokens := resp.Usage.TotalTokens
		contractx.AddTokenUsage(ctx, tokens)
		log.Info().
			Str("op", op).
			Str("model", c.cfg.Model).
			Int64("tokens_used", tokens).
			Float64("estimated_cost_usd", float64(tokens)*estimatedUSDPerToken).
			Msg("llm call completed")

		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s returned empty content", contractx.ErrSchemaViolation, op)
	}
	return trimmed, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", contractx.ErrValidation)
	}

	return resilience.Do(ctx, c.caller, resilience.ClassEmbeddings, "embed", func(ctx context.Context) ([][]float64, error) {
		resp, err := c.api.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
			Model: openaisdk.EmbeddingModel(c.cfg.EmbeddingModel),
			Input: openaisdk.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: embed: %w", contractx.ErrModelInvoke, err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("%w: embed returned %d vectors for %d texts", contractx.ErrModelInvoke, len(resp.Data), len(texts))
		}

		vectors := make([][]float64, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		contractx.AddTokenUsage(ctx, resp.Usage.TotalTokens)

		log.Debug().
			Str("model", c.cfg.EmbeddingModel).
			Int("num_texts", len(texts)).
			Int64("tokens_used", resp.Usage.TotalTokens).
			Msg("embeddings generated")

		return vectors, nil
	})
}
