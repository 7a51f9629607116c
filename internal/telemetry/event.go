// Package telemetry emits deploy step events for observability pipelines.
package telemetry

import (
	"context"
	"time"
)

// DeployEvent is one orchestrator step outcome, serialized as JSON on the wire.
type DeployEvent struct {
	RunID       string    `json:"runId"`
	Step        string    `json:"step"`
	Outcome     string    `json:"outcome"` // ok, warning, fatal, skipped
	Detail      string    `json:"detail,omitempty"`
	DurationMS  int64     `json:"durationMs"`
	Environment string    `json:"environment"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Emitter emits deploy events (e.g. to Kafka). Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, event *DeployEvent) error
}

// NopEmitter discards events; used when no brokers are configured.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *DeployEvent) error { return nil }
