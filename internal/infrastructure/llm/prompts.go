package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"RegIngest/internal/domain"
)

const systemPrompt = `You are a regulatory compliance analyst. You read one provision of a regulation and describe what it requires of an organization.

Respond with exactly one JSON object and nothing else, using this schema:
{
  "summary": "two or three plain-language sentences",
  "riskLevel": "critical" | "high" | "medium" | "low",
  "obligations": [{"title": "short imperative title", "description": "what must be done"}],
  "systemTypes": ["kinds of systems or processes the provision applies to"]
}

Rules:
- riskLevel must be one of the four listed values.
- obligations is an empty array when the provision imposes no duty (definitions, scope, recitals).
- List obligations in the order they appear in the text.
- Do not wrap the JSON in Markdown.`

func buildMessages(p domain.Provision, regulationName string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildUserPrompt(p, regulationName)),
	}
}

func buildUserPrompt(p domain.Provision, regulationName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Regulation: %s\n", regulationName)
	fmt.Fprintf(&b, "Article %s\n", p.Number)
	if p.SectionTitle != "" {
		fmt.Fprintf(&b, "Section: %s\n", p.SectionTitle)
	}
	b.WriteString("\nText:\n")
	b.WriteString(p.FullText)
	return b.String()
}
