package domain

import (
	"strings"
	"time"
)

// SourceDocument is a fetched page; it is never persisted.
type SourceDocument struct {
	URL       string
	RawMarkup string
	FetchedAt time.Time
}

// Provision is a numbered article extracted from a regulatory document.
type Provision struct {
	ID           string
	RegulationID string
	Number       string
	SectionTitle string
	FullText     string
}

// RiskLevel classifies how much compliance exposure a provision carries.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// ParseRiskLevel lowercases the value; ok reports whether it belongs to the closed taxonomy.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(value)))
	switch level {
	case RiskCritical, RiskHigh, RiskMedium, RiskLow:
		return level, true
	default:
		return level, false
	}
}

// ObligationDraft is an obligation as emitted by the enrichment service, before it has an identity.
type ObligationDraft struct {
	Title       string
	Description string
}

// EnrichedProvision is a Provision plus AI-derived analysis.
// Obligations order is significant: it determines obligation identity.
type EnrichedProvision struct {
	Provision
	AISummary   string
	RiskLevel   RiskLevel
	Obligations []ObligationDraft
	SystemTypes []string
}

// Usage counts tokens consumed by enrichment calls.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the sum of both usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Enrichment is the outcome of one successful enrichment call.
type Enrichment struct {
	Provision EnrichedProvision
	Usage     Usage
}

// FailedProvision records a provision whose enrichment failed and why.
type FailedProvision struct {
	Provision Provision
	Error     string
}
