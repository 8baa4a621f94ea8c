package model

import "time"

type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

type RunKind string

const (
	RunKindExtract RunKind = "EXTRACT"
	RunKindLoad    RunKind = "LOAD"
)

// Run is one extraction or load run, recorded in lms.IngestRun for the admin
// API and for operator forensics.
type Run struct {
	ID           int64     `json:"id" db:"id"`
	Kind         RunKind   `json:"kind" db:"kind"`
	SourceSystem string    `json:"source_system,omitempty" db:"source_system"`
	Status       RunStatus `json:"status" db:"status"`
	RowCount     int       `json:"row_count" db:"row_count"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type RunStatusResponse struct {
	Run       Run            `json:"run"`
	Resources map[string]int `json:"resources,omitempty"`
}
