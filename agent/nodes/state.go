// Package turnnode holds the per-node steps of the coordinator's
// handle-turn graph. Each node takes the shared graph state, does one thing,
// and passes the state on.
package turnnode

import (
	"time"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

type GraphInput struct {
	// Text is the raw user message for this turn.
	Text string
	// History is the formatted conversation context, possibly empty on the
	// first turn.
	History string
}

type GraphOutput struct {
	Result contractx.TurnResult
}

// CallSpec is one planned handler invocation.
type CallSpec struct {
	Handler  contractx.HandlerID
	Task     contractx.TaskName
	Context  map[string]any
	Parallel bool
}

// GraphState flows through the turn graph. Nodes mutate it in place and
// return it; only dispatch touches it from multiple goroutines, under its
// own synchronization.
type GraphState struct {
	Text    string
	History string
	Now     time.Time
	Start   time.Time

	Intent        contractx.Intent
	OrderID       string
	OrderIDMethod string

	Calls   []CallSpec
	Results map[contractx.HandlerID]contractx.TaskResponse

	Eligibility *contractx.EligibilityInfo
	Template    contractx.ResponseTemplate
}
