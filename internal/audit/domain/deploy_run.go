package domain

import "time"

// DeployRun is the persisted record of one deploy invocation.
type DeployRun struct {
	ID          string
	Environment string
	TriggeredBy string
	Status      RunStatus
	Steps       []StepRecord
	StartedAt   time.Time
	FinishedAt  *time.Time
}

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StepRecord summarizes one orchestrator step inside a run.
type StepRecord struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"` // ok, warning, fatal, skipped
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"durationMs"`
}
