package turnnode

import (
	"regexp"
	"strings"
)

// Extraction patterns, tried in priority order. Order numbers are 4-6 digits
// and users write them with or without the ORD- prefix, in English or
// Spanish.
var (
	canonicalPattern = regexp.MustCompile(`(?i)ORD-\d{4,6}`)
	keywordPattern   = regexp.MustCompile(`(?i)\b(?:order|pedido|orden|compra)\s+(?:is\s+|number\s+|número\s+|#\s*|n[úu]mero\s+de\s+)?(\d{4,6})\b`)
	reversedPattern  = regexp.MustCompile(`(?i)\bn[úu]mero\s+(?:de\s+)?(?:pedido|orden)\s+(\d{4,6})\b`)
	barePattern      = regexp.MustCompile(`\b(\d{4,6})\b`)
)

// ExtractOrderID pulls an order id out of free text. The second return names
// the pattern that matched, for logging; both are empty when nothing
// matched. A canonical ORD- reference anywhere in the text beats a bare
// number earlier in it.
func ExtractOrderID(text string) (string, string) {
	if m := canonicalPattern.FindString(text); m != "" {
		return strings.ToUpper(m), "canonical"
	}
	if m := keywordPattern.FindStringSubmatch(text); m != nil {
		return "ORD-" + m[1], "keyword"
	}
	if m := reversedPattern.FindStringSubmatch(text); m != nil {
		return "ORD-" + m[1], "reversed_keyword"
	}
	if m := barePattern.FindStringSubmatch(text); m != nil {
		return "ORD-" + m[1], "bare_number"
	}
	return "", ""
}
