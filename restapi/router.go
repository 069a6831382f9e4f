// Package restapi provides the main router and initialization for REST API
// endpoints.
package restapi

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	osvapi "github.com/ortelius/vuln2rev-mapper/restapi/modules/osv"
	pipelineapi "github.com/ortelius/vuln2rev-mapper/restapi/modules/pipeline"
)

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
func SetupRoutes(app *fiber.App, db database.DBConnection, cfg *config.Config, schema graphql.Schema) {
	// API Group /api/v1
	api := app.Group("/api/v1")

	// GraphQL Route - Mounted within the api group to inherit path prefixes
	api.Post("/graphql", GraphQLHandler(schema))

	// Pipeline Routes
	pipelineGroup := api.Group("/pipeline")
	pipelineGroup.Post("/run", pipelineapi.PostRunPipeline(db, cfg))
	pipelineGroup.Get("/status", pipelineapi.GetPipelineStatus())

	api.Post("/hitting-sets/compute", pipelineapi.PostComputeHittingSets(db, cfg))
	api.Post("/revisions/build", pipelineapi.PostBuildRevisions(db, cfg))

	// Feed Routes
	api.Post("/osv/update", osvapi.PostUpdateOSV(db, cfg))
	api.Get("/osv/last-updated", osvapi.GetLastUpdated(db))
	api.Get("/vulnerabilities/count", osvapi.GetVulnerabilityCount(db))

	log.Println("API routes initialized successfully")
}
