package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
	prompts []string
}

func (f *fakeSummarizer) Complete(_ context.Context, promptText string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, promptText)
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func (f *fakeSummarizer) CompleteJSON(context.Context, string, string, map[string]any, any) error {
	return errors.New("not used")
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	if got := CountTokens("12345678"); got != 2 {
		t.Errorf("CountTokens() = %d, want 2", got)
	}
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens(empty) = %d, want 0", got)
	}
}

func TestAddWithinBudgetKeepsEverything(t *testing.T) {
	t.Parallel()

	h := NewHistory(Config{MaxTokens: 8000, TargetTokens: 6000, KeepRecent: 6}, nil)
	ctx := context.Background()

	h.Add(ctx, "user", "quiero devolver mi pedido ORD-84315", map[string]any{"intent": "refund"})
	h.Add(ctx, "assistant", "Tu pedido califica para devolución.", nil)

	stats := h.Stats()
	if stats.Messages != 2 || stats.HasSummary {
		t.Errorf("Stats = %+v", stats)
	}

	rendered := h.Context(0)
	if !strings.Contains(rendered, "USER: quiero devolver mi pedido ORD-84315") {
		t.Errorf("Context() = %q", rendered)
	}
	if !strings.Contains(rendered, "ASSISTANT: Tu pedido califica") {
		t.Errorf("Context() = %q", rendered)
	}
}

func TestCompactionSummarizesMiddle(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{summary: "- Usuario preguntó por ORD-84315\n- Pedido elegible"}
	// Tiny budget so a handful of messages trips compaction with a middle
	// section big enough to summarize.
	h := NewHistory(Config{MaxTokens: 1000, TargetTokens: 50, KeepRecent: 2, EnableSummarization: true}, summarizer)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		// 32 chars, 8 tokens each.
		h.Add(ctx, "user", "pedido ORD-84315 devolver ya ok.", map[string]any{"intent": "refund"})
	}

	stats := h.Stats()
	if !stats.HasSummary {
		t.Fatal("expected a summary after compaction")
	}
	if stats.Messages != 3 {
		t.Errorf("Messages = %d, want first + 2 recent", stats.Messages)
	}
	if summarizer.calls == 0 {
		t.Fatal("summarizer never called")
	}
	if !strings.Contains(summarizer.prompts[0], "Resume la siguiente conversación") {
		t.Errorf("summarize prompt = %q", summarizer.prompts[0])
	}

	rendered := h.Context(0)
	if !strings.Contains(rendered, "[RESUMEN DE CONVERSACIÓN ANTERIOR]") {
		t.Errorf("Context() missing summary block: %q", rendered)
	}
}

// blockingSummarizer parks inside Complete until released, standing in for a
// slow model round-trip.
type blockingSummarizer struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSummarizer) Complete(context.Context, string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "- resumen corto", nil
}

func (b *blockingSummarizer) CompleteJSON(context.Context, string, string, map[string]any, any) error {
	return errors.New("not used")
}

func TestReadersNotBlockedDuringSummarization(t *testing.T) {
	t.Parallel()

	summarizer := &blockingSummarizer{started: make(chan struct{}), release: make(chan struct{})}
	h := NewHistory(Config{MaxTokens: 1000, TargetTokens: 50, KeepRecent: 2, EnableSummarization: true}, summarizer)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 7; i++ {
			h.Add(ctx, "user", "pedido ORD-84315 devolver ya ok.", nil)
		}
	}()

	<-summarizer.started

	// The model call is in flight; readers must not wait for it.
	stats := make(chan Stats, 1)
	go func() { stats <- h.Stats() }()
	select {
	case <-stats:
	case <-time.After(2 * time.Second):
		t.Fatal("Stats() blocked while summarization was in flight")
	}

	rendered := make(chan string, 1)
	go func() { rendered <- h.Context(0) }()
	select {
	case <-rendered:
	case <-time.After(2 * time.Second):
		t.Fatal("Context() blocked while summarization was in flight")
	}

	close(summarizer.release)
	<-done

	if !h.Stats().HasSummary {
		t.Fatal("expected a summary after compaction")
	}
}

func TestCompactionReducesTokens(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{summary: "- corto"}
	h := NewHistory(Config{MaxTokens: 200, TargetTokens: 60, KeepRecent: 2, EnableSummarization: true}, summarizer)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		h.Add(ctx, "user", strings.Repeat("texto largo sobre devoluciones ", 4), nil)
	}

	if total := h.Stats().TotalTokens; total > 200 {
		t.Errorf("TotalTokens = %d, want under the max budget", total)
	}
}

func TestSummarizationFailureFallsBackToPruning(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{err: errors.New("model offline")}
	h := NewHistory(Config{MaxTokens: 100, TargetTokens: 30, KeepRecent: 2, EnableSummarization: true}, summarizer)
	ctx := context.Background()

	h.Add(ctx, "user", "quiero devolver ORD-84315 por favor amable equipo", map[string]any{"intent": "refund"})
	h.Add(ctx, "assistant", "mensaje general sin importancia que ocupa espacio", map[string]any{"response_type": "general_info"})
	h.Add(ctx, "user", "pregunta sobre devolución del pedido ORD-84315 otra vez", map[string]any{"intent": "refund"})
	h.Add(ctx, "assistant", "otra respuesta general larga que ocupa bastante espacio", map[string]any{"response_type": "general_info"})
	h.Add(ctx, "user", "mensaje reciente uno con contenido", nil)
	h.Add(ctx, "assistant", "mensaje reciente dos con contenido", nil)

	stats := h.Stats()
	if stats.Messages != 3 {
		t.Errorf("Messages = %d, want first + 2 recent", stats.Messages)
	}
	if stats.HasSummary {
		rendered := h.Context(0)
		if !strings.Contains(rendered, "ORD-84315") {
			t.Errorf("pruned summary lost the order id: %q", rendered)
		}
	}
}

func TestPruningKeepsRefundMessages(t *testing.T) {
	t.Parallel()

	h := NewHistory(Config{MaxTokens: 100, TargetTokens: 30, KeepRecent: 2, EnableSummarization: false}, nil)
	ctx := context.Background()

	h.Add(ctx, "user", "hola como estas hoy, espero que muy bien", map[string]any{"intent": "general"})
	h.Add(ctx, "user", "quiero devolver mi pedido ORD-25836 cuanto antes", map[string]any{"intent": "refund"})
	h.Add(ctx, "assistant", "charla general sin relevancia para nada concreto", map[string]any{"response_type": "general_info"})
	h.Add(ctx, "user", "reciente uno con suficiente texto para contar", nil)
	h.Add(ctx, "assistant", "reciente dos con suficiente texto para contar", nil)

	rendered := h.Context(0)
	if h.Stats().HasSummary && !strings.Contains(rendered, "ORD-25836") {
		t.Errorf("refund message lost in pruning: %q", rendered)
	}
}

func TestContextMaxMessages(t *testing.T) {
	t.Parallel()

	h := NewHistory(Config{MaxTokens: 8000, TargetTokens: 6000, KeepRecent: 6}, nil)
	ctx := context.Background()
	h.Add(ctx, "user", "uno", nil)
	h.Add(ctx, "assistant", "dos", nil)
	h.Add(ctx, "user", "tres", nil)

	rendered := h.Context(2)
	if strings.Contains(rendered, "uno") {
		t.Errorf("Context(2) should drop the oldest message: %q", rendered)
	}
	if !strings.Contains(rendered, "dos") || !strings.Contains(rendered, "tres") {
		t.Errorf("Context(2) = %q", rendered)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	h := NewHistory(Config{}, nil)
	h.Add(context.Background(), "user", "hola", nil)
	h.Clear()

	stats := h.Stats()
	if stats.Messages != 0 || stats.TotalTokens != 0 || stats.HasSummary {
		t.Errorf("Stats after Clear = %+v", stats)
	}
	if h.Context(0) != "" {
		t.Errorf("Context after Clear = %q", h.Context(0))
	}
}
