package contract

import "context"

// Executor implements the task-specific branch of a handler. The generic
// wrapper owns lifecycle, timing, and error translation; executors only do
// the work and may return errors freely.
type Executor interface {
	Execute(ctx context.Context, req TaskRequest) (map[string]any, error)
}

// TaskHandler is the dispatchable face of a wrapped executor. Handle never
// returns an error: failures surface as Error-status responses.
type TaskHandler interface {
	Name() HandlerID
	Handle(ctx context.Context, req TaskRequest) TaskResponse
}

// Completer is the generative-text collaborator.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteJSON forces a schema-constrained JSON reply and decodes it into
	// out. Malformed output wraps ErrSchemaViolation.
	CompleteJSON(ctx context.Context, name string, prompt string, schema map[string]any, out any) error
}

// Embedder is the embedding collaborator.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Span is one unit of traced work. Implementations must be side-effecting
// only and never influence control flow.
type Span interface {
	SetTag(key, value string)
	SetOutput(v any)
	End(err error)
}

// Tracer opens spans and records structured events against the
// observability sink.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	Event(ctx context.Context, name string, fields map[string]any)
}
