// Package events provides the pub/sub bus for pipeline lifecycle events.
// Every cycle of the daemon (monitor batch, derivation, backend sync) is
// announced here so that observers do not need to hook into the pipeline.
package events

import "time"

// EventType identifies the category of event.
type EventType string

// Event types emitted by the pipeline.
const (
	// Monitor committed a batch of active connection ids.
	EventBatch EventType = "monitor.batch"

	// Collector resolved connections for a batch.
	EventConnectionsChanged EventType = "connections.changed"

	// Zones derived from the current connections.
	EventZonesDerived EventType = "zones.derived"

	// Backend results
	EventRulesApplied EventType = "rules.applied"
	EventRulesFailed  EventType = "rules.failed"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Cycle     string    `json:"cycle,omitempty"` // pipeline cycle id
	Source    string    `json:"source"`          // "monitor", "daemon", "control"
	Data      any       `json:"data"`            // Type-specific payload
}

// ──────────────────────────────────────────────────────────────────────────────
// Type-Specific Payloads
// ──────────────────────────────────────────────────────────────────────────────

// BatchData is the payload for EventBatch.
type BatchData struct {
	IDs []uint32 `json:"ids"`
}

// ConnectionsData is the payload for EventConnectionsChanged.
type ConnectionsData struct {
	Requested int      `json:"requested"`
	Resolved  int      `json:"resolved"`
	Ignored   int      `json:"ignored,omitempty"`
	IDs       []string `json:"ids"`
}

// ZonesData is the payload for EventZonesDerived.
type ZonesData struct {
	Forward []string `json:"forward"`
	Reverse []string `json:"reverse"`
}

// RulesData is the payload for EventRulesApplied and EventRulesFailed.
type RulesData struct {
	Commands int           `json:"commands"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Command  string        `json:"command,omitempty"` // failing command
	Error    string        `json:"error,omitempty"`
}
