package classifier

import (
	"fmt"
	"strings"

	"regwatch/internal/domain/entity"
	"regwatch/internal/usecase/monitor"
	"regwatch/internal/utils/text"
)

var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	categories := make([]string, len(entity.Categories))
	for i, c := range entity.Categories {
		categories[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("You classify changes on regulatory publication pages by their relevance to product compliance.\n\n")
	b.WriteString("Categories: ")
	b.WriteString(strings.Join(categories, ", "))
	b.WriteString(".\nUse not_product_compliance for administrative, tax or service-only content.\n\n")
	b.WriteString("Impact levels:\n")
	b.WriteString("- critical: product recalls, immediate safety issues, severe penalties\n")
	b.WriteString("- high: major compliance changes, significant costs, market access risk\n")
	b.WriteString("- medium: moderate compliance updates that need planning\n")
	b.WriteString("- low: minor changes with limited business impact\n")
	b.WriteString("- informational: no direct compliance impact\n\n")
	b.WriteString("Answer with a single JSON object and nothing else, with exactly these fields:\n")
	b.WriteString(`{"category": string, "impact": string, "confidence": number between 0 and 1, "reasoning": string, "keywords": [string]}`)
	return b.String()
}

// buildPrompt frames the changed content with its source. Content beyond
// maxChars runes is cut; the second return value reports the cut.
func buildPrompt(content string, meta monitor.SourceMetadata, maxChars int) (string, bool) {
	body, truncated := text.Truncate(content, maxChars)

	var b strings.Builder
	b.WriteString("Classify this change to a monitored regulatory source.\n\n")
	fmt.Fprintf(&b, "Jurisdiction: %s\n", orUnknown(meta.Jurisdiction))
	fmt.Fprintf(&b, "Agency: %s\n", orUnknown(meta.Agency))
	fmt.Fprintf(&b, "URL: %s\n", meta.URL)
	fmt.Fprintf(&b, "Change: %s (size delta %+d bytes)\n\n", meta.Kind, meta.SizeDelta)
	b.WriteString("Content:\n")
	b.WriteString(body)
	if truncated {
		b.WriteString("\n[content truncated]")
	}
	return b.String(), truncated
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
