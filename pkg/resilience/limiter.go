// Package resilience wraps external calls with per-dependency-class
// concurrency limits, wall-clock timeouts, and retry-with-backoff.
package resilience

import "context"

// Class names a dependency class with its own concurrency budget, so that
// saturation of a slow class never starves a faster one.
type Class string

const (
	ClassLLM        Class = "llm"
	ClassEmbeddings Class = "embeddings"
	ClassDatastore  Class = "datastore"
)

// Limits configures the per-class concurrency caps. LLM calls are the most
// expensive, datastore reads the cheapest.
type Limits struct {
	LLM        int `envconfig:"LLM" split_words:"true" default:"5"`
	Embeddings int `envconfig:"EMBEDDINGS" split_words:"true" default:"10"`
	Datastore  int `envconfig:"DATASTORE" split_words:"true" default:"20"`
}

// Limiter is a counting semaphore. A size of zero or less means unlimited.
type Limiter struct {
	slots chan struct{}
}

func NewLimiter(size int) *Limiter {
	if size <= 0 {
		return &Limiter{}
	}
	return &Limiter{slots: make(chan struct{}, size)}
}

func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.slots == nil {
		return ctx.Err()
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	if l == nil || l.slots == nil {
		return
	}
	<-l.slots
}

// InUse reports the number of currently held slots.
func (l *Limiter) InUse() int {
	if l == nil || l.slots == nil {
		return 0
	}
	return len(l.slots)
}

// LimiterSet holds one limiter per dependency class. It is constructed once
// at startup and passed by handle into the components that need it.
type LimiterSet struct {
	byClass map[Class]*Limiter
}

func NewLimiterSet(limits Limits) *LimiterSet {
	return &LimiterSet{
		byClass: map[Class]*Limiter{
			ClassLLM:        NewLimiter(limits.LLM),
			ClassEmbeddings: NewLimiter(limits.Embeddings),
			ClassDatastore:  NewLimiter(limits.Datastore),
		},
	}
}

// For returns the limiter for class. Unknown classes are unlimited.
func (s *LimiterSet) For(class Class) *Limiter {
	if s == nil {
		return nil
	}
	return s.byClass[class]
}
