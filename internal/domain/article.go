package domain

import "time"

// Regulation is the persisted parent record for an ingested regulatory document.
type Regulation struct {
	ID             string
	OrganizationID string
	Name           string
	FullTitle      string
	Jurisdiction   string
	EffectiveDate  *time.Time
	SourceURL      string
	IngestJobID    string
	IngestTime     time.Time
}

// Article is a persisted provision with its enrichment summary and content checksum.
type Article struct {
	ID             string
	OrganizationID string
	RegulationID   string
	ArticleNumber  string
	SectionTitle   string
	RawText        string
	AISummary      string
	RiskLevel      RiskLevel
	SystemTypes    []string
	Checksum       string
	IngestJobID    string
	IngestTime     time.Time
}

// ObligationStatus enumerates compliance tracking states of an obligation.
type ObligationStatus string

const (
	ObligationPending   ObligationStatus = "pending"
	ObligationCompliant ObligationStatus = "compliant"
	ObligationGap       ObligationStatus = "gap"
)

// Obligation is a compliance requirement owned by an Article.
type Obligation struct {
	ID             string
	OrganizationID string
	ArticleID      string
	Title          string
	Summary        string
	Status         ObligationStatus
}
