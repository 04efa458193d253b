package turnnode

import (
	"fmt"
	"time"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

// FinalizeTurn folds the graph state into the TurnResult handed back to the
// caller. Agents are listed in plan order.
func FinalizeTurn(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	agents := make([]contractx.HandlerID, 0, len(in.Calls))
	for _, call := range in.Calls {
		if _, ok := in.Results[call.Handler]; ok {
			agents = append(agents, call.Handler)
		}
	}

	result := contractx.TurnResult{
		ResponseType:   in.Template.ResponseType,
		Message:        in.Template.Message,
		ActionRequired: in.Template.ActionRequired,
		KeyDetails:     in.Template.KeyDetails,
		Intent:         in.Intent,
		AgentsCalled:   agents,
		LatencyMS:      time.Since(in.Start).Milliseconds(),
		Eligibility:    in.Eligibility,
	}

	// The id the user will be asked to confirm: prefer what the transaction
	// agent actually looked up over the raw extraction.
	if in.Intent == contractx.IntentRefund {
		result.ExtractedOrderID = in.OrderID
		if resp, ok := in.Results[contractx.HandlerTransaction]; ok && resp.Status == contractx.StatusSuccess {
			if id, ok := resp.Result["order_id"].(string); ok && id != "" {
				result.ExtractedOrderID = id
			}
		}
	}

	return GraphOutput{Result: result}, nil
}
