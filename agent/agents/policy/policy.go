// Package policy implements the policy-expert executor: free-text questions
// about the refund policy answered from the retrieval corpus.
package policy

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/retrieval"
)

// Executor handles search_policy tasks.
type Executor struct {
	searcher *retrieval.Searcher
}

var _ contractx.Executor = (*Executor)(nil)

func NewExecutor(searcher *retrieval.Searcher) *Executor {
	return &Executor{searcher: searcher}
}

func (e *Executor) Execute(ctx context.Context, req contractx.TaskRequest) (map[string]any, error) {
	if req.Task != contractx.TaskSearchPolicy {
		return nil, fmt.Errorf("%w: unsupported task %q", contractx.ErrValidation, req.Task)
	}

	query, _ := req.Context["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: missing required field 'query' in context", contractx.ErrValidation)
	}

	policyText, err := e.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"policy_text": policyText,
		"query":       query,
		"source":      "RAG search on refund policy",
	}, nil
}
