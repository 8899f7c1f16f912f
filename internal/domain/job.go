package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates ingest job lifecycle states.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobPartial   JobStatus = "partial"
)

// Terminal reports whether no further transition is allowed from the status.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobPartial
}

// IngestJob is the provenance record of one pipeline run.
type IngestJob struct {
	ID             string
	OrganizationID string
	Source         string
	SourceURL      string
	Status         JobStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	Log            string
	ErrorMessage   string
}

// JobStatusView is the read-only projection served to operational tooling.
type JobStatusView struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Source         string     `json:"source"`
	Status         JobStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// View projects the job onto its status view.
func (j IngestJob) View() JobStatusView {
	return JobStatusView{
		ID:             j.ID,
		OrganizationID: j.OrganizationID,
		Source:         j.Source,
		Status:         j.Status,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
	}
}

// ProvenanceOptions carries the provenance stamped onto every persisted row.
type ProvenanceOptions struct {
	IngestJobID    string
	OrganizationID string
	Timestamp      time.Time
}

// PersistStats aggregates the outcome of persisting a batch of articles.
type PersistStats struct {
	ArticlesInserted    int `json:"articles_inserted"`
	ArticlesUpdated     int `json:"articles_updated"`
	ArticlesUnchanged   int `json:"articles_unchanged"`
	ObligationsInserted int `json:"obligations_inserted"`
}

// RunStats summarizes a finished ingest run.
type RunStats struct {
	JobID              string           `json:"job_id"`
	RegulationID       string           `json:"regulation_id"`
	Status             JobStatus        `json:"status"`
	Provisions         int              `json:"provisions"`
	Enriched           int              `json:"enriched"`
	Failed             int              `json:"failed"`
	Failures           []FailureSummary `json:"failures,omitempty"`
	RegulationInserted bool             `json:"regulation_inserted"`
	Persist            PersistStats     `json:"persist"`
	Usage              Usage            `json:"usage"`
	EstimatedCostUSD   float64          `json:"estimated_cost_usd"`
	Duration           time.Duration    `json:"duration_ns"`
	Warnings           []string         `json:"warnings,omitempty"`
}

// FailureSummary is the log-friendly form of a FailedProvision.
type FailureSummary struct {
	ProvisionID string `json:"provision_id"`
	Number      string `json:"number"`
	Error       string `json:"error"`
}

// Partial reports a run that finished but lost some provisions to enrichment failures.
func (s RunStats) Partial() bool {
	return s.Status == JobSucceeded && s.Failed > 0
}

// LogJSON renders the stats for the job log column.
func (s RunStats) LogJSON() string {
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(raw)
}
