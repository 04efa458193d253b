// Package memory keeps the multi-turn conversation inside a token budget.
// When the history outgrows the target, the middle of the conversation is
// summarized (or pruned when summarization is off or fails) while the first
// message and the most recent ones are kept verbatim.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/prompt"
)

type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Tokens    int            `json:"tokens"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Summary struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

type Config struct {
	MaxTokens           int  `envconfig:"MAX_TOKENS" split_words:"true" default:"8000"`
	TargetTokens        int  `envconfig:"TARGET_TOKENS" split_words:"true" default:"6000"`
	KeepRecent          int  `envconfig:"KEEP_RECENT" split_words:"true" default:"6"`
	EnableSummarization bool `envconfig:"ENABLE_SUMMARIZATION" split_words:"true" default:"true"`
}

// Stats is a point-in-time snapshot of the history.
type Stats struct {
	Messages    int  `json:"messages"`
	TotalTokens int  `json:"total_tokens"`
	HasSummary  bool `json:"has_summary"`
}

// History is the token-budgeted conversation log. Safe for concurrent use.
type History struct {
	mu        sync.Mutex
	cfg       Config
	completer contractx.Completer
	prompts   prompt.Set

	messages []Message
	summary  *Summary

	// compacting gates Add-triggered compaction to one in flight; gen detects
	// a Clear that raced a compaction so stale results are dropped.
	compacting bool
	gen        uint64
}

func NewHistory(cfg Config, completer contractx.Completer) *History {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}
	if cfg.TargetTokens <= 0 || cfg.TargetTokens > cfg.MaxTokens {
		cfg.TargetTokens = cfg.MaxTokens * 3 / 4
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 6
	}
	return &History{
		cfg:       cfg,
		completer: completer,
		prompts:   prompt.Load(),
	}
}

// CountTokens approximates the token count of text. One token per four
// characters is close enough for budget enforcement.
func CountTokens(text string) int {
	return len(text) / 4
}

// Add appends a message and compacts the history if it now exceeds the
// target budget. Compaction runs outside the lock so Context and Stats
// readers never wait behind the summarization model.
func (h *History) Add(ctx context.Context, role, content string, metadata map[string]any) {
	h.mu.Lock()

	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Tokens:    CountTokens(content),
		Metadata:  metadata,
	}
	h.messages = append(h.messages, msg)

	log.Debug().
		Str("role", role).
		Int("tokens", msg.Tokens).
		Int("total_messages", len(h.messages)).
		Int("total_tokens", h.totalTokensLocked()).
		Msg("message added to history")

	needCompact := h.totalTokensLocked() > h.cfg.TargetTokens && !h.compacting
	if needCompact {
		h.compacting = true
	}
	h.mu.Unlock()

	if needCompact {
		h.compact(ctx)
		h.mu.Lock()
		h.compacting = false
		h.mu.Unlock()
	}
}

func (h *History) totalTokensLocked() int {
	total := 0
	for _, m := range h.messages {
		total += m.Tokens
	}
	if h.summary != nil {
		total += h.summary.Tokens
	}
	return total
}

// compact keeps the first message and the most recent KeepRecent, and folds
// the middle into the running summary. The middle is snapshotted and the lock
// released while the summarization model runs; since Add only appends, the
// cut index stays valid, and the generation check drops a result that raced a
// Clear.
func (h *History) compact(ctx context.Context) {
	h.mu.Lock()
	if len(h.messages) <= h.cfg.KeepRecent+1 {
		log.Debug().Int("messages", len(h.messages)).Msg("compaction skipped, too few messages")
		h.mu.Unlock()
		return
	}

	before := h.totalTokensLocked()
	cut := len(h.messages) - h.cfg.KeepRecent
	middle := make([]Message, cut-1)
	copy(middle, h.messages[1:cut])
	var previous string
	if h.summary != nil {
		previous = h.summary.Text
	}
	gen := h.gen
	useModel := h.cfg.EnableSummarization && h.completer != nil && len(middle) > 2
	h.mu.Unlock()

	var summary *Summary
	if useModel {
		summary = h.summarize(ctx, middle, previous)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != gen {
		return
	}

	if summary != nil {
		h.summary = summary
	} else {
		h.pruneLocked(middle)
	}
	h.messages = append([]Message{h.messages[0]}, h.messages[cut:]...)

	log.Info().
		Int("tokens_before", before).
		Int("tokens_after", h.totalTokensLocked()).
		Int("messages_after", len(h.messages)).
		Bool("has_summary", h.summary != nil).
		Msg("history compacted")
}

// summarize runs without the history lock held. A nil return means the
// caller should prune instead.
func (h *History) summarize(ctx context.Context, middle []Message, previous string) *Summary {
	var b strings.Builder
	for i, m := range middle {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", strings.ToUpper(m.Role), m.Content)
	}
	if previous != "" {
		// Fold the previous summary in so nothing falls off the back.
		b.WriteString("\n\nRESUMEN PREVIO: " + previous)
	}

	filled := prompt.Fill(h.prompts.SummarizeHistory, map[string]string{
		"conversation_text": b.String(),
	})

	text, err := h.completer.Complete(ctx, filled)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Error().Err(err).Msg("history summarization failed, pruning instead")
		return nil
	}

	text = strings.TrimSpace(text)
	log.Info().
		Int("messages_summarized", len(middle)).
		Int("summary_tokens", CountTokens(text)).
		Msg("middle messages summarized")
	return &Summary{Text: text, Tokens: CountTokens(text)}
}

// pruneLocked folds only the refund- and error-related middle messages into
// a plain-text summary block so order numbers survive compaction even
// without a model.
func (h *History) pruneLocked(middle []Message) {
	var kept []string
	for _, m := range middle {
		intent, _ := m.Metadata["intent"].(string)
		responseType, _ := m.Metadata["response_type"].(string)
		if intent == "refund" || strings.Contains(responseType, "refund") || strings.Contains(responseType, "error") {
			kept = append(kept, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
		}
	}
	if len(kept) == 0 {
		log.Debug().Msg("pruning kept nothing from the middle")
		return
	}

	text := strings.Join(kept, "\n")
	if h.summary != nil {
		text = h.summary.Text + "\n" + text
	}
	h.summary = &Summary{Text: text, Tokens: CountTokens(text)}

	log.Info().
		Int("middle_messages", len(middle)).
		Int("retained", len(kept)).
		Msg("middle messages pruned")
}

// Context renders the history for a prompt: summary block first, then up to
// maxMessages recent messages. Zero means all retained messages.
func (h *History) Context(maxMessages int) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var parts []string
	if h.summary != nil {
		parts = append(parts, fmt.Sprintf("[RESUMEN DE CONVERSACIÓN ANTERIOR]\n%s\n", h.summary.Text))
	}

	messages := h.messages
	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
	}
	return strings.Join(parts, "\n\n")
}

func (h *History) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Messages:    len(h.messages),
		TotalTokens: h.totalTokensLocked(),
		HasSummary:  h.summary != nil,
	}
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.summary = nil
	h.gen++
}
