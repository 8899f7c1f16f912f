package domain

import (
	"errors"
	"fmt"
)

// ErrNoProvisions tags an extraction that produced nothing. It is a warning, not a failure.
var ErrNoProvisions = errors.New("no provisions extracted")

// FetchError reports a failed source retrieval. Status is zero for transport failures.
type FetchError struct {
	URL        string
	Status     int
	StatusText string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %d %s", e.URL, e.Status, e.StatusText)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EnrichmentErrorKind classifies why an enrichment call failed.
type EnrichmentErrorKind string

const (
	EnrichmentTransport     EnrichmentErrorKind = "transport"
	EnrichmentEmptyResponse EnrichmentErrorKind = "empty_response"
	EnrichmentMalformed     EnrichmentErrorKind = "malformed"
)

// EnrichmentError is a per-provision failure; it never aborts a batch.
type EnrichmentError struct {
	ProvisionID string
	Kind        EnrichmentErrorKind
	Raw         string
	Err         error
}

func (e *EnrichmentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("enrich %s: %s", e.ProvisionID, e.Kind)
	}
	return fmt.Sprintf("enrich %s: %s: %v", e.ProvisionID, e.Kind, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// ParseError carries model text that did not match the enrichment schema.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse enrichment response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure with the operation and entity involved.
type PersistenceError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// JobStage names the pipeline step a job failed in.
type JobStage string

const (
	StageStart    JobStage = "start"
	StageFetch    JobStage = "fetch"
	StageExtract  JobStage = "extract"
	StageEnrich   JobStage = "enrich"
	StagePersist  JobStage = "persist"
	StageFinalize JobStage = "finalize"
)

// JobError is the orchestration-level wrapper around any failure that ended a job.
type JobError struct {
	JobID string
	Stage JobStage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("ingest job %s failed at %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
