package contract

// JSON schemas sent with schema-constrained completions. Hand-written rather
// than reflected so the wire contract stays explicit and stable.

func IntentClassificationSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"intent", "confidence"},
		"properties": map[string]any{
			"intent": map[string]any{
				"type": "string",
				"enum": []string{string(IntentRefund), string(IntentPolicy), string(IntentGeneral)},
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
	}
}

func ResponseTemplateSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"response_type", "message", "action_required", "key_details"},
		"properties": map[string]any{
			"response_type": map[string]any{
				"type": "string",
				"enum": []string{
					string(ResponseRefundEligible),
					string(ResponseRefundNotEligible),
					string(ResponseRefundProcessed),
					string(ResponsePolicyInfo),
					string(ResponseGeneralInfo),
					string(ResponseError),
				},
			},
			"message": map[string]any{
				"type":      "string",
				"maxLength": maxMessageLength,
			},
			"action_required": map[string]any{
				"type": "string",
			},
			"key_details": map[string]any{
				"type":     "array",
				"maxItems": 5,
				"items":    map[string]any{"type": "string"},
			},
		},
	}
}
