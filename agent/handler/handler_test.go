package handler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

type funcExecutor func(ctx context.Context, req contractx.TaskRequest) (map[string]any, error)

func (f funcExecutor) Execute(ctx context.Context, req contractx.TaskRequest) (map[string]any, error) {
	return f(ctx, req)
}

// recordingTracer captures spans so tests can assert one span per invocation.
type recordingTracer struct {
	mu    sync.Mutex
	spans []*recordedSpan
}

type recordedSpan struct {
	name  string
	tags  map[string]string
	err   error
	ended bool
}

func (t *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, contractx.Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	span := &recordedSpan{name: name, tags: map[string]string{}}
	t.spans = append(t.spans, span)
	return ctx, span
}

func (t *recordingTracer) Event(context.Context, string, map[string]any) {}

func (s *recordedSpan) SetTag(key, value string) { s.tags[key] = value }
func (s *recordedSpan) SetOutput(any)            {}
func (s *recordedSpan) End(err error)            { s.err = err; s.ended = true }

func TestHandleSuccess(t *testing.T) {
	t.Parallel()

	tracer := &recordingTracer{}
	h := New(contractx.HandlerPolicy, funcExecutor(func(context.Context, contractx.TaskRequest) (map[string]any, error) {
		return map[string]any{"policy_text": "14 days"}, nil
	}), tracer)

	resp := h.Handle(context.Background(), contractx.TaskRequest{
		Target: contractx.HandlerPolicy,
		Task:   contractx.TaskSearchPolicy,
	})

	if resp.Status != contractx.StatusSuccess {
		t.Fatalf("Status = %q, want success: %+v", resp.Status, resp)
	}
	if resp.Source != contractx.HandlerPolicy {
		t.Errorf("Source = %q", resp.Source)
	}
	if resp.Result["policy_text"] != "14 days" {
		t.Errorf("Result = %v", resp.Result)
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty", resp.Error)
	}
	if resp.Meta.Timestamp.IsZero() {
		t.Error("Meta.Timestamp is zero")
	}

	if len(tracer.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(tracer.spans))
	}
	span := tracer.spans[0]
	if span.name != "policy_expert.search_policy" || !span.ended || span.err != nil {
		t.Errorf("span = %+v", span)
	}
	if span.tags["handler"] != "policy_expert" || span.tags["task"] != "search_policy" {
		t.Errorf("span tags = %v", span.tags)
	}
}

func TestHandleExecutorError(t *testing.T) {
	t.Parallel()

	tracer := &recordingTracer{}
	h := New(contractx.HandlerTransaction, funcExecutor(func(context.Context, contractx.TaskRequest) (map[string]any, error) {
		return nil, errors.New("datastore unreachable")
	}), tracer)

	resp := h.Handle(context.Background(), contractx.TaskRequest{Task: contractx.TaskGetOrder})

	if resp.Status != contractx.StatusError {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
	want := "Task failed in transaction_agent: datastore unreachable"
	if resp.Error != want {
		t.Errorf("Error = %q, want %q", resp.Error, want)
	}
	if resp.Result != nil {
		t.Errorf("Result = %v, want nil", resp.Result)
	}
	if tracer.spans[0].err == nil {
		t.Error("span ended without the failure")
	}
}

func TestHandleRecoversPanic(t *testing.T) {
	t.Parallel()

	h := New(contractx.HandlerPolicy, funcExecutor(func(context.Context, contractx.TaskRequest) (map[string]any, error) {
		panic("nil map write")
	}), nil)

	resp := h.Handle(context.Background(), contractx.TaskRequest{Task: contractx.TaskSearchPolicy})

	if resp.Status != contractx.StatusError {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
	if !strings.Contains(resp.Error, "Task failed in policy_expert") || !strings.Contains(resp.Error, "nil map write") {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestHandleReportsTokenUsage(t *testing.T) {
	t.Parallel()

	h := New(contractx.HandlerCoordinator, funcExecutor(func(ctx context.Context, _ contractx.TaskRequest) (map[string]any, error) {
		contractx.AddTokenUsage(ctx, 120)
		contractx.AddTokenUsage(ctx, 35)
		return map[string]any{}, nil
	}), nil)

	resp := h.Handle(context.Background(), contractx.TaskRequest{Task: contractx.TaskHandleUserQuery})
	if resp.Meta.TokensUsed != 155 {
		t.Errorf("Meta.TokensUsed = %d, want 155", resp.Meta.TokensUsed)
	}

	hErr := New(contractx.HandlerCoordinator, funcExecutor(func(ctx context.Context, _ contractx.TaskRequest) (map[string]any, error) {
		contractx.AddTokenUsage(ctx, 40)
		return nil, errors.New("model offline")
	}), nil)

	if resp := hErr.Handle(context.Background(), contractx.TaskRequest{Task: contractx.TaskHandleUserQuery}); resp.Meta.TokensUsed != 40 {
		t.Errorf("Meta.TokensUsed on failure = %d, want 40", resp.Meta.TokensUsed)
	}
}

func TestHandleNilTracer(t *testing.T) {
	t.Parallel()

	h := New(contractx.HandlerPolicy, funcExecutor(func(context.Context, contractx.TaskRequest) (map[string]any, error) {
		return map[string]any{}, nil
	}), nil)

	if resp := h.Handle(context.Background(), contractx.TaskRequest{}); resp.Status != contractx.StatusSuccess {
		t.Errorf("Status = %q, want success", resp.Status)
	}
}
