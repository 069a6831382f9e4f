// Package services wires event handlers to the pipeline.
package services

import (
	"context"

	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/pipeline"
)

// AnalysisServiceWrapper adapts the pipeline to the event handler's
// AnalysisService interface.
type AnalysisServiceWrapper struct {
	DB  database.DBConnection
	Cfg *config.Config
}

// AnalyzePackage solves and analyzes one package's minimal revisions.
func (s *AnalysisServiceWrapper) AnalyzePackage(ctx context.Context, pkgName string) error {
	p := pipeline.New(s.DB, s.Cfg, database.InitLogger(), nil)
	_, err := p.AnalyzeSinglePackage(ctx, pkgName)
	return err
}
