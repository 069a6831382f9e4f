// Package pipeline implements the REST API handlers for running the
// vulnerability-to-revision pipeline.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	revision "github.com/ortelius/vuln2rev-mapper/events/modules/revisions"
	pipe "github.com/ortelius/vuln2rev-mapper/pipeline"
)

var (
	runMu       sync.Mutex
	runActive   bool
	runProgress string
	lastSummary *pipe.Summary
)

// RunRequest selects the pipeline input. An empty input_path exports the
// package records from the graph instead.
type RunRequest struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
}

// PostRunPipeline starts the full pipeline (hitting sets + revision build)
// in the background. Only one run at a time.
func PostRunPipeline(db database.DBConnection, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RunRequest
		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid request body: " + err.Error(),
			})
		}

		runMu.Lock()
		if runActive {
			progress := runProgress
			runMu.Unlock()
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Pipeline already in progress",
				"status":  progress,
			})
		}
		runActive = true
		runProgress = "starting full pipeline"
		runMu.Unlock()

		go runPipeline(db, cfg, req.InputPath)

		return c.JSON(fiber.Map{
			"success": true,
			"message": "Pipeline started",
			"status":  "processing",
		})
	}
}

// PostComputeHittingSets runs just the solver stage, synchronously, and
// returns the minimal-version records.
func PostComputeHittingSets(db database.DBConnection, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RunRequest
		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid request body: " + err.Error(),
			})
		}

		p := pipe.New(db, cfg, database.InitLogger(), nil)

		outputPath := req.OutputPath
		if outputPath == "" && req.InputPath != "" {
			outputPath = pipe.MinimalOutputPath(req.InputPath)
		}

		results, err := p.ComputeHittingSets(c.Context(), req.InputPath, outputPath)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"success":     true,
			"packages":    len(results),
			"output_path": outputPath,
			"results":     results,
		})
	}
}

// PostBuildRevisions starts the revision build stage from an existing
// minimal-version record file, in the background.
func PostBuildRevisions(db database.DBConnection, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RunRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid request body: " + err.Error(),
			})
		}

		if req.InputPath == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "input_path is required",
			})
		}

		records, err := pipe.LoadMinimalRecords(req.InputPath)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		runMu.Lock()
		if runActive {
			progress := runProgress
			runMu.Unlock()
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Pipeline already in progress",
				"status":  progress,
			})
		}
		runActive = true
		runProgress = fmt.Sprintf("building revisions for %d packages", len(records))
		runMu.Unlock()

		go func() {
			defer finishRun()
			summary, err := newPipeline(db, cfg).BuildRevisionMetadata(context.Background(), records)
			recordOutcome(summary, err)
		}()

		return c.JSON(fiber.Map{
			"success":  true,
			"message":  fmt.Sprintf("Revision build started for %d packages", len(records)),
			"status":   "processing",
			"packages": len(records),
		})
	}
}

// GetPipelineStatus reports whether a run is active and the last completed
// summary.
func GetPipelineStatus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		runMu.Lock()
		defer runMu.Unlock()
		return c.JSON(fiber.Map{
			"running":      runActive,
			"status":       runProgress,
			"last_summary": lastSummary,
		})
	}
}

func runPipeline(db database.DBConnection, cfg *config.Config, inputPath string) {
	defer finishRun()

	p := newPipeline(db, cfg)
	summary, err := p.RunFullPipeline(context.Background(), inputPath)
	recordOutcome(summary, err)
}

// newPipeline wires the snapshot event producer when brokers are configured.
func newPipeline(db database.DBConnection, cfg *config.Config) *pipe.Pipeline {
	var events pipe.SnapshotPublisher
	if len(cfg.KafkaBrokers) > 0 {
		events = revision.NewRevisionProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return pipe.New(db, cfg, database.InitLogger(), events)
}

func recordOutcome(summary *pipe.Summary, err error) {
	runMu.Lock()
	defer runMu.Unlock()
	if err != nil {
		runProgress = "failed: " + err.Error()
		log.Printf("Pipeline run failed: %v", err)
	} else {
		runProgress = fmt.Sprintf("completed: %d revisions analyzed", summary.Done)
	}
	if summary != nil {
		lastSummary = summary
	}
}

func finishRun() {
	runMu.Lock()
	runActive = false
	runMu.Unlock()
}
