package turnnode

import (
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

// PlanCalls decides which handlers this turn needs. Refund turns always fan
// out to both the policy expert and the transaction agent, even when no
// order id was extracted: the transaction agent answers the missing-id case
// with a prompt for the user.
func PlanCalls(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	switch in.Intent {
	case contractx.IntentRefund:
		orderID, method := ExtractOrderID(in.Text)
		in.OrderID = orderID
		in.OrderIDMethod = method
		if orderID != "" {
			log.Info().Str("order_id", orderID).Str("extraction_method", method).Msg("order id extracted")
		} else {
			log.Info().Msg("no order id in user message, transaction agent will prompt for it")
		}

		var orderIDValue any
		if orderID != "" {
			orderIDValue = orderID
		}
		in.Calls = []CallSpec{
			{
				Handler:  contractx.HandlerPolicy,
				Task:     contractx.TaskSearchPolicy,
				Context:  map[string]any{"query": "refund policy requirements"},
				Parallel: true,
			},
			{
				Handler:  contractx.HandlerTransaction,
				Task:     contractx.TaskGetOrder,
				Context:  map[string]any{"order_id": orderIDValue},
				Parallel: true,
			},
		}

	default:
		// Policy and general questions both go to the policy expert with
		// the user's own words as the query.
		in.Calls = []CallSpec{
			{
				Handler: contractx.HandlerPolicy,
				Task:    contractx.TaskSearchPolicy,
				Context: map[string]any{"query": in.Text},
			},
		}
	}

	handlers := make([]string, len(in.Calls))
	for i, call := range in.Calls {
		handlers[i] = string(call.Handler)
	}
	log.Info().
		Str("intent", string(in.Intent)).
		Strs("handlers", handlers).
		Msg("handler calls planned")

	return in, nil
}
