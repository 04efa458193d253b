package turnnode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

// DispatchCalls runs the planned calls: parallel ones fan out together and
// are joined before the sequential ones run in plan order. One failed branch
// never takes down the others; its error lands in Results under the handler
// key like any other error response.
func DispatchCalls(ctx context.Context, in *GraphState, handlers map[contractx.HandlerID]contractx.TaskHandler) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	var parallel, sequential []CallSpec
	for _, call := range in.Calls {
		if call.Parallel {
			parallel = append(parallel, call)
		} else {
			sequential = append(sequential, call)
		}
	}

	if len(parallel) > 0 {
		log.Info().Int("num_calls", len(parallel)).Msg("dispatching parallel handler calls")

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, call := range parallel {
			wg.Add(1)
			go func(call CallSpec) {
				defer wg.Done()
				resp := invoke(ctx, handlers, call)
				mu.Lock()
				in.Results[call.Handler] = resp
				mu.Unlock()
			}(call)
		}
		wg.Wait()
	}

	for _, call := range sequential {
		in.Results[call.Handler] = invoke(ctx, handlers, call)
	}

	return in, nil
}

// invoke guards a single handler call. Handlers recover their own panics,
// but a missing handler or a panic in the map lookup path still has to
// become an error response rather than an escaped failure.
func invoke(ctx context.Context, handlers map[contractx.HandlerID]contractx.TaskHandler, call CallSpec) (resp contractx.TaskResponse) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("handler", string(call.Handler)).Msg("handler dispatch panicked")
			resp = contractx.ErrorResponse(call.Handler, fmt.Sprintf("Task failed in %s: panic: %v", call.Handler, r), 0)
		}
	}()

	h, ok := handlers[call.Handler]
	if !ok {
		log.Warn().Str("handler", string(call.Handler)).Msg("requested handler not registered")
		return contractx.ErrorResponse(call.Handler, fmt.Sprintf("Task failed in %s: handler not registered", call.Handler), 0)
	}

	start := time.Now()
	resp = h.Handle(ctx, contractx.TaskRequest{
		Target:  call.Handler,
		Task:    call.Task,
		Context: call.Context,
	})

	log.Debug().
		Str("handler", string(call.Handler)).
		Str("task", string(call.Task)).
		Str("status", string(resp.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("handler call finished")
	return resp
}
