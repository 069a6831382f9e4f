// Package revision handles Kafka event consumption for revision analysis
// requests.
package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// AnalysisService defines the interface for on-demand revision analysis.
type AnalysisService interface {
	AnalyzePackage(ctx context.Context, pkgName string) error
}

// HandleRevisionAnalyzeRequested processes analyze-request events from
// Kafka. Snapshot-created events on the same topic are informational and
// pass through unhandled.
func HandleRevisionAnalyzeRequested(ctx context.Context, msg []byte, service AnalysisService) error {
	var event RevisionAnalyzeRequestedEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("failed to unmarshal revision event: %w", err)
	}

	if event.EventType != "revision.analyze.requested" {
		return nil
	}

	if event.PackageName == "" {
		return fmt.Errorf("invalid event: missing package_name")
	}

	log.Printf("Processing analyze request for package %s", event.PackageName)

	if err := service.AnalyzePackage(ctx, event.PackageName); err != nil {
		return fmt.Errorf("internal service error: %w", err)
	}

	log.Printf("Successfully analyzed package %s", event.PackageName)
	return nil
}
