package turnnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/prompt"
)

// AssembleResponse builds the final user-facing reply. For refund turns with
// a found order it first delegates the eligibility check to the transaction
// agent, then asks the model for a schema-constrained reply. Malformed model
// output is replaced by the fixed fallback template; the turn still
// succeeds.
func AssembleResponse(ctx context.Context, in *GraphState, completer contractx.Completer, prompts prompt.Set, handlers map[contractx.HandlerID]contractx.TaskHandler) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	checkEligibility(ctx, in, handlers)

	filled := prompt.Fill(prompts.ResponseAssembly, map[string]string{
		"user_message":        in.Text,
		"intent":              string(in.Intent),
		"context_str":         buildContextString(in),
		"eligibility_context": buildEligibilityContext(in.Eligibility),
	})

	var template contractx.ResponseTemplate
	err := completer.CompleteJSON(ctx, "response_assembly", filled, contractx.ResponseTemplateSchema(), &template)
	if err == nil {
		err = template.Validate()
	}
	if errors.Is(err, contractx.ErrSchemaViolation) {
		log.Error().Err(err).Msg("response assembly produced invalid output, using fallback")
		in.Template = contractx.FallbackResponse()
		return in, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("response_type", string(template.ResponseType)).
		Int("message_length", len(template.Message)).
		Bool("has_action", template.ActionRequired != "").
		Msg("structured response assembled")

	in.Template = template
	return in, nil
}

// checkEligibility delegates the refund-window decision to the transaction
// agent when this turn located an order. Failures are logged and skipped;
// the reply is assembled without eligibility context.
func checkEligibility(ctx context.Context, in *GraphState, handlers map[contractx.HandlerID]contractx.TaskHandler) {
	if in.Intent != contractx.IntentRefund {
		return
	}
	transResp, ok := in.Results[contractx.HandlerTransaction]
	if !ok || transResp.Status != contractx.StatusSuccess {
		return
	}
	found, _ := transResp.Result["found"].(bool)
	if !found {
		return
	}

	resp := invoke(ctx, handlers, CallSpec{
		Handler: contractx.HandlerTransaction,
		Task:    contractx.TaskCheckEligibility,
		Context: map[string]any{"order_data": transResp.Result["order_data"]},
	})
	if resp.Status != contractx.StatusSuccess {
		log.Warn().Str("error", resp.Error).Msg("eligibility check failed, assembling without it")
		return
	}

	info, err := contractx.EligibilityFromMap(resp.Result)
	if err != nil {
		log.Warn().Err(err).Msg("eligibility result malformed, assembling without it")
		return
	}

	log.Info().
		Bool("eligible", info.Eligible).
		Str("reason", info.Reason).
		Msg("refund eligibility checked")
	in.Eligibility = &info
}

// buildContextString renders every handler result for the assembly prompt,
// in plan order so the prompt is deterministic.
func buildContextString(in *GraphState) string {
	parts := make([]string, 0, len(in.Calls))
	for _, call := range in.Calls {
		resp, ok := in.Results[call.Handler]
		if !ok {
			continue
		}
		if resp.Status == contractx.StatusSuccess {
			raw, err := json.Marshal(resp.Result)
			if err != nil {
				raw = []byte(fmt.Sprintf("%v", resp.Result))
			}
			parts = append(parts, fmt.Sprintf("[%s]: %s", call.Handler, raw))
		} else {
			parts = append(parts, fmt.Sprintf("[%s]: ERROR - %s", call.Handler, resp.Error))
		}
	}
	return strings.Join(parts, "\n\n")
}

func buildEligibilityContext(info *contractx.EligibilityInfo) string {
	if info == nil {
		return ""
	}

	days := "N/A"
	if info.DaysSincePurchase != nil {
		days = fmt.Sprintf("%d", *info.DaysSincePurchase)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nRefund Eligibility Check:\n")
	fmt.Fprintf(&b, "- Eligible: %t\n", info.Eligible)
	fmt.Fprintf(&b, "- Reason: %s\n", info.Reason)
	fmt.Fprintf(&b, "- Order Status: %s\n", info.OrderStatus)
	fmt.Fprintf(&b, "- Days since purchase: %s\n", days)
	if info.AlreadyRefunded {
		fmt.Fprintf(&b, "- Already refunded: Yes\n")
		fmt.Fprintf(&b, "- Refund date: %s\n", info.RefundDate)
		fmt.Fprintf(&b, "- Transaction ID: %s\n", info.RefundTransactionID)
	}
	return b.String()
}
