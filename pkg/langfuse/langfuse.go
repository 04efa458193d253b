// Package langfuse ships trace spans and structured events to a Langfuse
// ingestion endpoint. Delivery is best-effort: failures are logged and never
// propagate into request handling.
package langfuse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

type Config struct {
	Host      string        `envconfig:"HOST" split_words:"true" default:"https://cloud.langfuse.com"`
	PublicKey string        `envconfig:"PUBLIC_KEY" split_words:"true"`
	SecretKey string        `envconfig:"SECRET_KEY" split_words:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

const (
	ingestionPath        = "/api/public/ingestion"
	maxResponseSizeBytes = 1 << 20
)

type traceIDKey struct{}

// Client implements contract.Tracer against the Langfuse REST ingestion API.
type Client struct {
	baseURL    string
	publicKey  string
	secretKey  string
	httpClient *http.Client
}

var _ contractx.Tracer = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if baseURL == "" {
		return nil, errors.New("langfuse host is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.PublicKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("langfuse keys are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		publicKey:  strings.TrimSpace(cfg.PublicKey),
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) StartSpan(ctx context.Context, name string) (context.Context, contractx.Span) {
	traceID, ok := ctx.Value(traceIDKey{}).(string)
	if !ok || traceID == "" {
		traceID = uuid.NewString()
		ctx = context.WithValue(ctx, traceIDKey{}, traceID)
	}

	return ctx, &span{
		client:  c,
		id:      uuid.NewString(),
		traceID: traceID,
		name:    name,
		start:   time.Now().UTC(),
		tags:    map[string]string{},
	}
}

func (c *Client) Event(ctx context.Context, name string, fields map[string]any) {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	c.send(ctx, map[string]any{
		"id":        uuid.NewString(),
		"type":      "event-create",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"body": map[string]any{
			"id":       uuid.NewString(),
			"traceId":  traceID,
			"name":     name,
			"metadata": fields,
		},
	})
}

type span struct {
	client  *Client
	id      string
	traceID string
	name    string
	start   time.Time
	tags    map[string]string
	output  any
}

func (s *span) SetTag(key, value string) {
	s.tags[key] = value
}

func (s *span) SetOutput(v any) {
	s.output = v
}

func (s *span) End(err error) {
	body := map[string]any{
		"id":        s.id,
		"traceId":   s.traceID,
		"name":      s.name,
		"startTime": s.start.Format(time.RFC3339Nano),
		"endTime":   time.Now().UTC().Format(time.RFC3339Nano),
		"metadata":  s.tags,
	}
	if s.output != nil {
		body["output"] = s.output
	}
	if err != nil {
		body["level"] = "ERROR"
		body["statusMessage"] = err.Error()
	}

	s.client.send(context.Background(), map[string]any{
		"id":        uuid.NewString(),
		"type":      "span-create",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"body":      body,
	})
}

func (c *Client) send(ctx context.Context, event map[string]any) {
	payload, err := json.Marshal(map[string]any{"batch": []any{event}})
	if err != nil {
		log.Warn().Err(err).Msg("langfuse: marshal ingestion event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ingestionPath, bytes.NewReader(payload))
	if err != nil {
		log.Warn().Err(err).Msg("langfuse: build ingestion request")
		return
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("langfuse: post ingestion event")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Msg("langfuse: ingestion rejected")
	}
}

// Nop returns a tracer that records nothing, for tests and runs without
// observability credentials.
func Nop() contractx.Tracer {
	return nopTracer{}
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, contractx.Span) {
	return ctx, nopSpan{}
}

func (nopTracer) Event(context.Context, string, map[string]any) {}

type nopSpan struct{}

func (nopSpan) SetTag(string, string) {}
func (nopSpan) SetOutput(any)         {}
func (nopSpan) End(error)             {}
