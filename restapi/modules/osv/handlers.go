// Package osv implements the REST API handlers for vulnerability feed
// operations.
package osv

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/osv"
	"github.com/ortelius/vuln2rev-mapper/store"
)

var (
	updateMu     sync.Mutex
	updateActive bool
)

// PostUpdateOSV triggers a feed refresh in the background. Only one refresh
// at a time.
func PostUpdateOSV(db database.DBConnection, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		updateMu.Lock()
		if updateActive {
			updateMu.Unlock()
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Feed update already in progress",
			})
		}
		updateActive = true
		updateMu.Unlock()

		go func() {
			defer func() {
				updateMu.Lock()
				updateActive = false
				updateMu.Unlock()
			}()

			logger := database.InitLogger()
			if err := osv.Update(context.Background(), db, cfg.OSVDataDir, cfg.Ecosystems, logger); err != nil {
				log.Printf("Feed update failed: %v", err)
			}
		}()

		return c.JSON(fiber.Map{
			"success":    true,
			"message":    "Feed update started",
			"ecosystems": cfg.Ecosystems,
		})
	}
}

// GetVulnerabilityCount returns the number of loaded vulnerability
// documents.
func GetVulnerabilityCount(db database.DBConnection) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := store.New(db, database.InitLogger())
		count, err := s.CountVulnerabilities(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"count":   count,
		})
	}
}

// GetLastUpdated returns the most recent feed sync timestamp.
func GetLastUpdated(db database.DBConnection) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := store.New(db, database.InitLogger())
		last, err := s.LastUpdated(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		if last.IsZero() {
			return c.JSON(fiber.Map{
				"success":      true,
				"last_updated": nil,
				"message":      "No feed sync has run yet",
			})
		}

		return c.JSON(fiber.Map{
			"success":      true,
			"last_updated": last.Format(time.RFC3339),
		})
	}
}
