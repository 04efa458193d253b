package turnnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/prompt"
)

// ClassifyIntent asks the model for a schema-constrained intent. Malformed
// model output falls back to the general intent; transport failures
// propagate so the turn boundary can report them.
func ClassifyIntent(ctx context.Context, in *GraphState, completer contractx.Completer, prompts prompt.Set) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	history := in.History
	if history == "" {
		history = "(no prior conversation)"
	}
	filled := prompt.Fill(prompts.IntentClassification, map[string]string{
		"user_message":         in.Text,
		"conversation_context": history,
	})

	var classification contractx.IntentClassification
	err := completer.CompleteJSON(ctx, "intent_classification", filled, contractx.IntentClassificationSchema(), &classification)
	if err == nil {
		err = classification.Validate()
	}
	if errors.Is(err, contractx.ErrSchemaViolation) {
		log.Error().Err(err).Str("defaulting_to", string(contractx.IntentGeneral)).Msg("intent classification produced invalid output")
		in.Intent = contractx.IntentGeneral
		return in, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("intent", string(classification.Intent)).
		Float64("confidence", classification.Confidence).
		Msg("intent classified")

	in.Intent = classification.Intent
	return in, nil
}
