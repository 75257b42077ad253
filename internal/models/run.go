package models

import "time"

// CountSummary holds the number of cleaned lines containing each marker.
type CountSummary struct {
	InfoCount    int `json:"info_count"`
	TraceCount   int `json:"trace_count"`
	EventCount   int `json:"event_count"`
	ProtErrCount int `json:"proterr_count"`
}

// RunRecord is the value published under the result key once per run.
type RunRecord struct {
	Timestamp string       `json:"timestamp"`
	Counts    CountSummary `json:"counts"`
}

// StageStatus is the lifecycle state of one pipeline stage within a run.
type StageStatus string

const (
	StagePending        StageStatus = "pending"
	StageRunning        StageStatus = "running"
	StageSuccess        StageStatus = "success"
	StageFailed         StageStatus = "failed"
	StageUpstreamFailed StageStatus = "upstream_failed"
)

// RunStatus is the outcome of a whole run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// StageReport describes how a stage went.
type StageReport struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Attempts int         `json:"attempts"`
	Error    string      `json:"error,omitempty"`
}

// RunSummary is the document indexed in Elasticsearch for every finished run.
type RunSummary struct {
	ID         string        `json:"id"`
	Pipeline   string        `json:"pipeline"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Timestamp  time.Time     `json:"timestamp"`
	Stages     []StageReport `json:"stages"`
	OutputPath string        `json:"output_path,omitempty"`
	ResultKey  string        `json:"result_key"`
	Record     *RunRecord    `json:"record,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// DatasetEvent announces that a dataset handle has a fresh value.
type DatasetEvent struct {
	Dataset   string    `json:"dataset"`
	RunID     string    `json:"run_id"`
	Pipeline  string    `json:"pipeline"`
	ResultKey string    `json:"result_key"`
	Record    RunRecord `json:"record"`
	EmittedAt time.Time `json:"emitted_at"`
}
