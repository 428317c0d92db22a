package model

import (
	"time"
)

// Job status constants
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobSuccess = "success"
	JobFailed  = "failed"
)

// IngestSummary reports what one ingest run did.
type IngestSummary struct {
	DocsIngested   int               `json:"docs_ingested"`
	DocsReplaced   int               `json:"docs_replaced"`
	PartsIngested  int               `json:"parts_ingested"`
	XRefsIngested  int               `json:"xrefs_ingested"`
	AliasesIngested int              `json:"aliases_ingested"`
	DocErrors      map[string]string `json:"doc_errors,omitempty"`
}

// ImportJob is one async upload→ingest unit of work. A job is mutated only
// by its own worker after submission.
type ImportJob struct {
	ID         string         `json:"job_id"`
	Filename   string         `json:"filename"`
	TargetDir  string         `json:"target_dir,omitempty"`
	StagedPath string         `json:"-"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Summary    *IngestSummary `json:"summary,omitempty"`
	ElapsedSec float64        `json:"elapsed_s,omitempty"`
}

// ScanJob is one async directory scan unit of work.
type ScanJob struct {
	ID         string       `json:"job_id"`
	Path       string       `json:"path"`
	Status     string       `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
	Summary    *ScanSummary `json:"summary,omitempty"`
}

// ScanSummary reports what one scan run did.
type ScanSummary struct {
	Path         string `json:"path"`
	ScannedFiles int    `json:"scanned_files"`
	ChangedFiles int    `json:"changed_files"`
	DeletedFiles int    `json:"deleted_files"`
	DocsDeleted  int    `json:"docs_deleted"`
	IngestSummary
	ElapsedSec float64 `json:"elapsed_s"`
}

// Terminal reports whether a job status is final.
func Terminal(status string) bool {
	return status == JobSuccess || status == JobFailed
}
