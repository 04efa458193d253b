// Package handler wraps a task executor with the uniform handler lifecycle:
// timing, tracing, panic isolation, and error-to-response translation.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/pkg/langfuse"
)

// Handler adapts an Executor into a TaskHandler. Handle never returns an
// error or lets a panic escape: every failure becomes an Error-status
// response naming the handler it failed in.
type Handler struct {
	name   contractx.HandlerID
	exec   contractx.Executor
	tracer contractx.Tracer
}

var _ contractx.TaskHandler = (*Handler)(nil)

func New(name contractx.HandlerID, exec contractx.Executor, tracer contractx.Tracer) *Handler {
	if tracer == nil {
		tracer = langfuse.Nop()
	}
	return &Handler{name: name, exec: exec, tracer: tracer}
}

func (h *Handler) Name() contractx.HandlerID {
	return h.name
}

func (h *Handler) Handle(ctx context.Context, req contractx.TaskRequest) (resp contractx.TaskResponse) {
	start := time.Now()

	spanCtx, span := h.tracer.StartSpan(ctx, fmt.Sprintf("%s.%s", h.name, req.Task))
	span.SetTag("handler", string(h.name))
	span.SetTag("task", string(req.Task))
	spanCtx = contractx.WithTokenUsage(spanCtx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("handler", string(h.name)).
				Str("task", string(req.Task)).
				Any("panic", r).
				Msg("handler panicked")
			resp = contractx.ErrorResponse(h.name,
				fmt.Sprintf("Task failed in %s: panic: %v", h.name, r),
				time.Since(start))
			resp.Meta.TokensUsed = contractx.TokensUsed(spanCtx)
			span.End(fmt.Errorf("panic: %v", r))
		}
	}()

	log.Info().
		Str("handler", string(h.name)).
		Str("task", string(req.Task)).
		Msg("task started")

	result, err := h.exec.Execute(spanCtx, req)
	elapsed := time.Since(start)
	tokens := contractx.TokensUsed(spanCtx)

	if err != nil {
		log.Warn().
			Str("handler", string(h.name)).
			Str("task", string(req.Task)).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("task failed")
		span.End(err)
		resp = contractx.ErrorResponse(h.name,
			fmt.Sprintf("Task failed in %s: %v", h.name, err),
			elapsed)
		resp.Meta.TokensUsed = tokens
		return resp
	}

	log.Info().
		Str("handler", string(h.name)).
		Str("task", string(req.Task)).
		Dur("elapsed", elapsed).
		Int64("tokens_used", tokens).
		Msg("task completed")

	span.SetOutput(result)
	span.End(nil)
	resp = contractx.SuccessResponse(h.name, result, elapsed)
	resp.Meta.TokensUsed = tokens
	return resp
}
