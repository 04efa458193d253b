// Package coordinator routes each user turn through intent classification,
// handler fan-out, and structured response assembly.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	nodex "github.com/barefootzenith/refund-agent/agent/nodes"
	"github.com/barefootzenith/refund-agent/agent/prompt"
	"github.com/barefootzenith/refund-agent/pkg/langfuse"
)

type Coordinator struct {
	handlers  map[contractx.HandlerID]contractx.TaskHandler
	completer contractx.Completer
	tracer    contractx.Tracer
	prompts   prompt.Set

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	completer contractx.Completer,
	handlers []contractx.TaskHandler,
	tracer contractx.Tracer,
) (*Coordinator, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if len(handlers) == 0 {
		return nil, errors.New("at least one task handler is required")
	}
	if tracer == nil {
		tracer = langfuse.Nop()
	}

	byID := make(map[contractx.HandlerID]contractx.TaskHandler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("nil task handler")
		}
		if _, dup := byID[h.Name()]; dup {
			return nil, fmt.Errorf("duplicate task handler %q", h.Name())
		}
		byID[h.Name()] = h
	}

	c := &Coordinator{
		handlers:  byID,
		completer: completer,
		tracer:    tracer,
		prompts:   prompt.Load(),
		now:       time.Now,
	}

	graphRunner, err := c.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	c.graphRunner = graphRunner

	handlerNames := make([]string, 0, len(byID))
	for id := range byID {
		handlerNames = append(handlerNames, string(id))
	}
	log.Info().Strs("handlers", handlerNames).Msg("coordinator initialized")

	return c, nil
}

// WithClock overrides the time source, for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// HandleTurn runs one user turn. It never returns an error: internal
// failures come back as a well-formed error-type TurnResult so the caller
// always has something to show the user.
func (c *Coordinator) HandleTurn(ctx context.Context, text string, history string) contractx.TurnResult {
	start := c.now()

	spanCtx, span := c.tracer.StartSpan(ctx, "coordinator.handle_turn")
	defer func() { span.End(nil) }()

	out, err := c.graphRunner.Invoke(spanCtx, nodex.GraphInput{
		Text:    text,
		History: history,
	})
	if err != nil {
		log.Error().Err(err).Msg("turn failed")
		span.SetTag("outcome", "error")
		fallback := contractx.FallbackResponse()
		return contractx.TurnResult{
			ResponseType:   fallback.ResponseType,
			Message:        fallback.Message,
			ActionRequired: fallback.ActionRequired,
			LatencyMS:      time.Since(start).Milliseconds(),
		}
	}

	span.SetTag("intent", string(out.Result.Intent))
	span.SetTag("response_type", string(out.Result.ResponseType))
	span.SetOutput(out.Result)

	log.Info().
		Str("intent", string(out.Result.Intent)).
		Str("response_type", string(out.Result.ResponseType)).
		Int("agents_called", len(out.Result.AgentsCalled)).
		Int64("latency_ms", out.Result.LatencyMS).
		Msg("turn completed")

	return out.Result
}

// Execute exposes the coordinator behind the same executor contract as the
// specialized agents, for callers that speak TaskRequest.
func (c *Coordinator) Execute(ctx context.Context, req contractx.TaskRequest) (map[string]any, error) {
	if req.Task != contractx.TaskHandleUserQuery {
		return nil, fmt.Errorf("%w: unsupported task %q", contractx.ErrValidation, req.Task)
	}
	userMessage, _ := req.Context["user_message"].(string)
	if userMessage == "" {
		return nil, fmt.Errorf("%w: missing required field 'user_message' in context", contractx.ErrValidation)
	}
	history, _ := req.Context["conversation_context"].(string)

	result := c.HandleTurn(ctx, userMessage, history)

	out := map[string]any{
		"intent":        string(result.Intent),
		"agents_called": result.AgentsCalled,
		"response": map[string]any{
			"response_type":   string(result.ResponseType),
			"message":         result.Message,
			"action_required": result.ActionRequired,
			"key_details":     result.KeyDetails,
		},
	}
	if result.Eligibility != nil {
		out["eligibility_info"] = result.Eligibility.AsMap()
	}
	if result.ExtractedOrderID != "" {
		out["extracted_order_id"] = result.ExtractedOrderID
	}
	return out, nil
}
