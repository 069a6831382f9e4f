package osv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/google/osv-scanner/pkg/models"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/util"
	"go.uber.org/zap"
)

// Loader walks downloaded advisory files and upserts them into the graph.
type Loader struct {
	DB      database.DBConnection
	DataDir string
	Logger  *zap.Logger
}

func NewLoader(db database.DBConnection, dataDir string, logger *zap.Logger) *Loader {
	return &Loader{DB: db, DataDir: dataDir, Logger: logger}
}

// LoadAll loads every ecosystem directory under DataDir and advances each
// ecosystem's high-water mark on success.
func (l *Loader) LoadAll(ctx context.Context, ecosystems []string) error {
	for _, eco := range ecosystems {
		if err := l.LoadEcosystem(ctx, eco); err != nil {
			return fmt.Errorf("load %s: %w", eco, err)
		}
	}
	return nil
}

// LoadEcosystem loads one ecosystem's advisories, skipping any not modified
// since the last successful run.
func (l *Loader) LoadEcosystem(ctx context.Context, ecosystem string) error {
	dir := filepath.Join(l.DataDir, ecosystem)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read feed dir %s: %w", dir, err)
	}

	lastRun, err := util.GetLastRun(l.DB, ecosystem)
	if err != nil {
		lastRun = time.Time{}
	}

	loaded := 0
	skipped := 0
	newest := lastRun

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		vuln, content, err := parseAdvisory(path)
		if err != nil {
			l.Logger.Sugar().Warnf("parse %s: %v", path, err)
			continue
		}

		if !vuln.Modified.IsZero() && !vuln.Modified.After(lastRun) {
			skipped++
			continue
		}
		if vuln.Modified.After(newest) {
			newest = vuln.Modified
		}

		if err := l.upsertAdvisory(ctx, vuln, content); err != nil {
			return fmt.Errorf("upsert %s: %w", vuln.ID, err)
		}
		loaded++
	}

	if loaded > 0 && newest.After(lastRun) {
		if err := util.SaveLastRun(l.DB, ecosystem, newest); err != nil {
			return fmt.Errorf("save high-water mark for %s: %w", ecosystem, err)
		}
	}

	l.Logger.Sugar().Infof("ecosystem %s: %d advisories loaded, %d unchanged", ecosystem, loaded, skipped)
	return nil
}

// parseAdvisory reads one advisory file into both the typed OSV model and
// the raw mapping. The raw form is what gets stored, enriched with computed
// CVSS scores; the typed form drives the affected-package extraction.
func parseAdvisory(path string) (*models.Vulnerability, map[string]interface{}, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, nil, err
	}

	var vuln models.Vulnerability
	if err := json.Unmarshal(data, &vuln); err != nil {
		return nil, nil, err
	}
	if vuln.ID == "" {
		return nil, nil, fmt.Errorf("advisory has no id")
	}

	var content map[string]interface{}
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, nil, err
	}
	util.AddCVSSScoresToContent(content)

	return &vuln, content, nil
}

func (l *Loader) upsertAdvisory(ctx context.Context, vuln *models.Vulnerability, content map[string]interface{}) error {
	vulnKey := util.SanitizeKey(vuln.ID)
	content["_key"] = vulnKey
	content["objtype"] = "Vulnerability"

	query := `
		UPSERT { _key: @key }
		INSERT @doc
		UPDATE @doc
		IN vulnerability
	`
	cursor, err := l.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": vulnKey, "doc": content},
	})
	if err != nil {
		return err
	}
	if err := cursor.Close(); err != nil {
		return err
	}

	for _, affected := range vuln.Affected {
		if affected.Package.Name == "" {
			continue
		}
		if err := l.upsertAffectedPackage(ctx, vulnKey, affected); err != nil {
			return err
		}
	}

	return nil
}

// upsertAffectedPackage stores the package hub document and the
// vuln2package edge. The edge carries the explicit affected versions, which
// is what the revision linker and the exporter join on.
func (l *Loader) upsertAffectedPackage(ctx context.Context, vulnKey string, affected models.Affected) error {
	ecosystem := util.NormalizeEcosystem(string(affected.Package.Ecosystem))
	purl := affected.Package.Purl
	if purl == "" {
		if t := util.EcosystemToPurlType(ecosystem); t != "" {
			purl = fmt.Sprintf("pkg:%s/%s", t, affected.Package.Name)
		}
	}

	pkgKey := util.SanitizeKey(ecosystem + ":" + affected.Package.Name)

	pkgQuery := `
		UPSERT { _key: @key }
		INSERT { _key: @key, objtype: "Package", name: @name, ecosystem: @ecosystem, purl: @purl }
		UPDATE { purl: @purl }
		IN package
	`
	cursor, err := l.DB.Database.Query(ctx, pkgQuery, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"key":       pkgKey,
			"name":      affected.Package.Name,
			"ecosystem": ecosystem,
			"purl":      purl,
		},
	})
	if err != nil {
		return err
	}
	if err := cursor.Close(); err != nil {
		return err
	}

	versions := affectedVersions(affected)

	edgeQuery := `
		UPSERT { _from: @from, _to: @to }
		INSERT { _from: @from, _to: @to, ecosystem: @ecosystem, versions: @versions }
		UPDATE { versions: @versions }
		IN vuln2package
	`
	cursor, err = l.DB.Database.Query(ctx, edgeQuery, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"from":      "vulnerability/" + vulnKey,
			"to":        "package/" + pkgKey,
			"ecosystem": ecosystem,
			"versions":  versions,
		},
	})
	if err != nil {
		return err
	}
	return cursor.Close()
}

// affectedVersions returns the explicit affected version list, or, when the
// advisory carries only ranges, the range boundary versions that still fall
// inside an affected range. Boundary versions are the only concrete version
// strings a range names, so they are the best available checkout targets.
func affectedVersions(affected models.Affected) []string {
	if len(affected.Versions) > 0 {
		return affected.Versions
	}

	seen := make(map[string]bool)
	versions := []string{}
	for _, vrange := range affected.Ranges {
		for _, event := range vrange.Events {
			for _, candidate := range []string{event.Introduced, event.LastAffected, event.Fixed} {
				if candidate == "" || candidate == "0" || seen[candidate] {
					continue
				}
				seen[candidate] = true
				if util.IsVersionAffected(candidate, affected) {
					versions = append(versions, candidate)
				}
			}
		}
	}
	sort.Strings(versions)
	return versions
}

// Update runs the full feed refresh: download every ecosystem, then load.
func Update(ctx context.Context, db database.DBConnection, dataDir string, ecosystems []string, logger *zap.Logger) error {
	dl := NewDownloader(dataDir, logger)
	if err := dl.DownloadAll(ctx, ecosystems); err != nil {
		logger.Sugar().Warnf("feed download finished with errors: %v", err)
	}
	return NewLoader(db, dataDir, logger).LoadAll(ctx, ecosystems)
}
