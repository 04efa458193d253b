// Package prompt embeds the LLM prompt templates and fills their variables.
package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/intent_classification.txt
	intentClassification string

	//go:embed template/response_assembly.txt
	responseAssembly string

	//go:embed template/summarize_history.txt
	summarizeHistory string
)

// Set holds the raw templates. Variables use {name} placeholders.
type Set struct {
	IntentClassification string
	ResponseAssembly     string
	SummarizeHistory     string
}

func Load() Set {
	return Set{
		IntentClassification: intentClassification,
		ResponseAssembly:     responseAssembly,
		SummarizeHistory:     summarizeHistory,
	}
}

// Fill substitutes every {key} placeholder with its value. Unknown
// placeholders are left in place so a missing variable is visible in logs
// instead of silently blank.
func Fill(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
