package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"RegIngest/internal/domain"
)

// Analysis is the structured part of an enrichment response.
type Analysis struct {
	Summary     string
	RiskLevel   domain.RiskLevel
	KnownRisk   bool
	Obligations []domain.ObligationDraft
	SystemTypes []string
}

type analysisPayload struct {
	Summary     *string `json:"summary"`
	RiskLevel   string  `json:"riskLevel"`
	Obligations []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"obligations"`
	SystemTypes []string `json:"systemTypes"`
}

var errMissingSummary = errors.New("response has no summary")

// ParseAnalysis decodes model text into an Analysis. It never panics; any
// mismatch comes back as a *domain.ParseError carrying the raw text.
func ParseAnalysis(raw string) (Analysis, *domain.ParseError) {
	text := extractJSONObject(stripCodeFence(raw))
	if text == "" {
		return Analysis{}, &domain.ParseError{Raw: raw, Err: errors.New("no JSON object in response")}
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		repaired := repairJSON(text)
		if repairErr := json.Unmarshal([]byte(repaired), &payload); repairErr != nil {
			return Analysis{}, &domain.ParseError{Raw: raw, Err: err}
		}
	}

	if payload.Summary == nil || strings.TrimSpace(*payload.Summary) == "" {
		return Analysis{}, &domain.ParseError{Raw: raw, Err: errMissingSummary}
	}

	level, known := domain.ParseRiskLevel(payload.RiskLevel)
	analysis := Analysis{
		Summary:     strings.TrimSpace(*payload.Summary),
		RiskLevel:   level,
		KnownRisk:   known,
		Obligations: make([]domain.ObligationDraft, 0, len(payload.Obligations)),
		SystemTypes: payload.SystemTypes,
	}
	if analysis.SystemTypes == nil {
		analysis.SystemTypes = []string{}
	}
	for _, o := range payload.Obligations {
		analysis.Obligations = append(analysis.Obligations, domain.ObligationDraft{
			Title:       strings.TrimSpace(o.Title),
			Description: strings.TrimSpace(o.Description),
		})
	}

	return analysis, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the span from the first '{' to the last '}'.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// repairJSON restores missing opening quotes before object keys, e.g. `, type":` -> `, "type":`.
func repairJSON(s string) string {
	src := []rune(s)
	fixed := make([]rune, 0, len(src)+16)

	i := 0
	for i < len(src) {
		ch := src[i]
		if ch != '{' && ch != ',' {
			fixed = append(fixed, ch)
			i++
			continue
		}

		fixed = append(fixed, ch)
		i++
		for i < len(src) && (src[i] == ' ' || src[i] == '\n' || src[i] == '\t' || src[i] == '\r') {
			fixed = append(fixed, src[i])
			i++
		}
		if i >= len(src) || !isLetter(src[i]) {
			continue
		}

		keyStart := i
		for i < len(src) && (isLetter(src[i]) || src[i] == '_') {
			i++
		}
		if i+1 < len(src) && src[i] == '"' && src[i+1] == ':' {
			fixed = append(fixed, '"')
		}
		fixed = append(fixed, src[keyStart:i]...)
	}

	return string(fixed)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
