package turnnode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/barefootzenith/refund-agent/agent/contract"
)

func ValidateTurn(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: user message is empty", contractx.ErrValidation)
	}

	now := nowFn().UTC()
	return &GraphState{
		Text:    text,
		History: strings.TrimSpace(in.History),
		Now:     now,
		Start:   now,
		Results: map[contractx.HandlerID]contractx.TaskResponse{},
	}, nil
}
