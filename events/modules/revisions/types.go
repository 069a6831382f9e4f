// Package revision defines types for Kafka event processing of revision
// snapshot events.
package revision

import (
	"time"

	"github.com/ortelius/vuln2rev-mapper/model"
)

// RevisionSnapshotCreatedEvent is published after a revision snapshot is
// persisted to the graph.
type RevisionSnapshotCreatedEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	Snapshot model.RevisionSnapshot `json:"snapshot"`
}

// RevisionAnalyzeRequestedEvent asks the worker to analyze one package's
// minimal revisions on demand.
type RevisionAnalyzeRequestedEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	PackageName string `json:"package_name"`
}
