package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/gitrepo"
	"github.com/ortelius/vuln2rev-mapper/hittingset"
	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/ortelius/vuln2rev-mapper/store"
	"go.uber.org/zap"
)

// Pipeline binds the solver and the revision builder to a database connection
// and runtime settings. Construct one in main and share it between the REST
// surface and the event consumer.
type Pipeline struct {
	Store  *store.Store
	Cfg    *config.Config
	Logger *zap.Logger
	Events SnapshotPublisher
}

func New(db database.DBConnection, cfg *config.Config, logger *zap.Logger, events SnapshotPublisher) *Pipeline {
	return &Pipeline{
		Store:  store.New(db, logger),
		Cfg:    cfg,
		Logger: logger,
		Events: events,
	}
}

// MinimalOutputPath derives the solver output path from its input:
// cve_affected_versions.json becomes cve_affected_versions_minimal.json in
// the same directory.
func MinimalOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + "_minimal" + ext
}

// ComputeHittingSets solves every package in the input mapping and writes the
// minimal-version records to outputPath. An empty inputPath pulls the records
// from the graph instead of a file.
func (p *Pipeline) ComputeHittingSets(ctx context.Context, inputPath, outputPath string) (map[string]*model.MinimalVersionRecord, error) {
	records, err := p.loadPackageRecords(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*model.MinimalVersionRecord, len(records))
	for _, name := range records.SortedNames() {
		rec := hittingset.SolvePackage(records[name], p.Logger)
		results[name] = &rec
	}

	if outputPath != "" {
		if err := writeJSON(outputPath, results); err != nil {
			return nil, err
		}
		p.Logger.Sugar().Infof("wrote %d minimal version records to %s", len(results), outputPath)
	}

	return results, nil
}

// BuildRevisionMetadata runs the revision pipeline over a minimal-version
// record file (or the records passed directly) and returns the completion
// summary.
func (p *Pipeline) BuildRevisionMetadata(ctx context.Context, records map[string]*model.MinimalVersionRecord) (*Summary, error) {
	orch := p.newOrchestrator()

	tasks := orch.BuildTasks(ctx, records)
	p.Logger.Sugar().Infof("revision build: %d tasks across %d packages", len(tasks), len(records))

	return orch.Run(ctx, tasks)
}

// RunFullPipeline chains the two stages: solve the hitting sets for every
// package, write the sibling _minimal.json, then analyze the selected
// revisions. An empty inputPath exports the package records from the graph.
func (p *Pipeline) RunFullPipeline(ctx context.Context, inputPath string) (*Summary, error) {
	outputPath := ""
	if inputPath != "" {
		outputPath = MinimalOutputPath(inputPath)
	} else {
		outputPath = filepath.Join(p.Cfg.StateDir, "cve_affected_versions_minimal.json")
	}

	results, err := p.ComputeHittingSets(ctx, inputPath, outputPath)
	if err != nil {
		return nil, fmt.Errorf("compute hitting sets: %w", err)
	}

	summary, err := p.BuildRevisionMetadata(ctx, results)
	if err != nil {
		return summary, fmt.Errorf("build revision metadata: %w", err)
	}

	return summary, nil
}

// AnalyzeSinglePackage solves and analyzes one package on demand. Used by
// the event consumer for targeted re-analysis.
func (p *Pipeline) AnalyzeSinglePackage(ctx context.Context, pkgName string) (*Summary, error) {
	records, err := p.Store.ExportPackageRecords(ctx)
	if err != nil {
		return nil, err
	}

	rec, ok := records[pkgName]
	if !ok {
		return nil, fmt.Errorf("package %s has no vulnerability records", pkgName)
	}

	solved := hittingset.SolvePackage(rec, p.Logger)
	return p.BuildRevisionMetadata(ctx, map[string]*model.MinimalVersionRecord{pkgName: &solved})
}

// LoadMinimalRecords reads a minimal-version record file.
func LoadMinimalRecords(path string) (map[string]*model.MinimalVersionRecord, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records map[string]*model.MinimalVersionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

func (p *Pipeline) loadPackageRecords(ctx context.Context, inputPath string) (model.PackageRecordSet, error) {
	if inputPath == "" {
		p.Logger.Sugar().Info("no input file, exporting package records from the graph")
		return p.Store.ExportPackageRecords(ctx)
	}

	data, err := os.ReadFile(inputPath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", inputPath, err)
	}

	var records model.PackageRecordSet
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", inputPath, err)
	}
	return records, nil
}

func (p *Pipeline) newOrchestrator() *Orchestrator {
	return &Orchestrator{
		Locator:     NewRepoLocator(p.Logger),
		Repos:       gitrepo.NewClient(p.Cfg.RepoCacheDir, p.Logger),
		Analyzer:    &gitrepo.Linguist{Cmd: p.Cfg.LinguistCmd},
		Store:       p.Store,
		Events:      p.Events,
		Logger:      p.Logger,
		Workers:     p.Cfg.Workers,
		TaskTimeout: p.Cfg.TaskTimeout,
	}
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
