// Package store is the graph persistence layer for revision snapshots: every
// write is a keyed UPSERT so re-running the pipeline converges on the same
// graph instead of duplicating it.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/ortelius/vuln2rev-mapper/util"
	"go.uber.org/zap"
)

// Store wraps the shared database connection with the revision graph
// operations. It holds no state beyond the connection.
type Store struct {
	DB     database.DBConnection
	Logger *zap.Logger
}

func New(db database.DBConnection, logger *zap.Logger) *Store {
	return &Store{DB: db, Logger: logger}
}

// Ping verifies the database answers queries. Run once at startup so a bad
// connection fails fast instead of mid-pipeline.
func (s *Store) Ping(ctx context.Context) error {
	cursor, err := s.DB.Database.Query(ctx, "RETURN 1", nil)
	if err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return cursor.Close()
}

// SnapshotExists reports whether a revision snapshot is already stored for
// the (repository, version) pair.
func (s *Store) SnapshotExists(ctx context.Context, repoName, version string) (bool, error) {
	key, err := database.FindRevisionKey(ctx, s.DB.Database, repoName, version)
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// FilterExistingSnapshots returns the revision keys that already exist, out
// of the candidate keys built from (repository, version) pairs. One round
// trip replaces a per-task existence probe.
func (s *Store) FilterExistingSnapshots(ctx context.Context, keys []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(keys) == 0 {
		return existing, nil
	}

	query := `
		FOR key IN @keys
			LET doc = DOCUMENT("revision", key)
			FILTER doc != null
			RETURN key
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"keys": keys},
	})
	if err != nil {
		return nil, fmt.Errorf("filter existing snapshots: %w", err)
	}
	defer cursor.Close()

	for cursor.HasMore() {
		var key string
		if _, err := cursor.ReadDocument(ctx, &key); err != nil {
			return nil, err
		}
		existing[key] = true
	}

	return existing, nil
}

// UpsertRevision persists one analyzed revision and its full edge
// neighborhood: the repo document, the revision document, one content-keyed
// langstat document per language, and the repo2revision, revision2lang,
// package2revision and vuln2revision edges. vulnIDs are unioned with the
// vulnerability ids already linked to the package for this version through
// vuln2package.
func (s *Store) UpsertRevision(ctx context.Context, pkgName string, snap *model.RevisionSnapshot, vulnIDs []string) error {
	if snap.Key == "" {
		snap.Key = util.RevisionKey(snap.RepoName, snap.Version)
	}
	if snap.AnalyzedAt.IsZero() {
		snap.AnalyzedAt = time.Now().UTC()
	}
	snap.ParseAndSetVersion()

	repoKey := util.SanitizeKey(snap.RepoName)

	if err := s.upsertRepo(ctx, repoKey, snap.RepoName, snap.RepoURL); err != nil {
		return fmt.Errorf("upsert repo %s: %w", snap.RepoName, err)
	}

	if err := s.upsertRevisionDoc(ctx, snap); err != nil {
		return fmt.Errorf("upsert revision %s: %w", snap.Key, err)
	}

	if err := s.upsertEdge(ctx, "repo2revision", "repo/"+repoKey, "revision/"+snap.Key, nil); err != nil {
		return fmt.Errorf("link repo to revision: %w", err)
	}

	for i := range snap.Languages {
		lang := &snap.Languages[i]
		lang.Key = util.LangStatKey(lang.Language, lang.Bytes)
		lang.ObjType = "LanguageStat"
		if err := s.upsertLangStat(ctx, lang); err != nil {
			return fmt.Errorf("upsert langstat %s: %w", lang.Key, err)
		}
		if err := s.upsertEdge(ctx, "revision2lang", "revision/"+snap.Key, "langstat/"+lang.Key,
			map[string]interface{}{"percent": lang.Percent}); err != nil {
			return fmt.Errorf("link revision to langstat: %w", err)
		}
	}

	if pkgName != "" {
		if err := s.linkPackage(ctx, pkgName, snap.Key); err != nil {
			return fmt.Errorf("link package to revision: %w", err)
		}
		if err := s.linkVulnerabilities(ctx, pkgName, snap.Version, snap.Key, vulnIDs); err != nil {
			return fmt.Errorf("link vulnerabilities to revision: %w", err)
		}
	}

	return nil
}

func (s *Store) upsertRepo(ctx context.Context, key, name, url string) error {
	query := `
		UPSERT { _key: @key }
		INSERT { _key: @key, objtype: "Repo", name: @name, url: @url }
		UPDATE { url: @url }
		IN repo
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": key, "name": name, "url": url},
	})
	if err != nil {
		return err
	}
	return cursor.Close()
}

func (s *Store) upsertRevisionDoc(ctx context.Context, snap *model.RevisionSnapshot) error {
	query := `
		UPSERT { _key: @key }
		INSERT @doc
		UPDATE @doc
		IN revision
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": snap.Key, "doc": snap},
	})
	if err != nil {
		return err
	}
	return cursor.Close()
}

func (s *Store) upsertLangStat(ctx context.Context, lang *model.LanguageStat) error {
	query := `
		UPSERT { _key: @key }
		INSERT { _key: @key, objtype: "LanguageStat", language: @language, bytes: @bytes }
		UPDATE {}
		IN langstat
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"key":      lang.Key,
			"language": lang.Language,
			"bytes":    lang.Bytes,
		},
	})
	if err != nil {
		return err
	}
	return cursor.Close()
}

// upsertEdge creates the edge if absent, keyed by (_from, _to). extra fields
// ride on the edge document.
func (s *Store) upsertEdge(ctx context.Context, collection, from, to string, extra map[string]interface{}) error {
	doc := map[string]interface{}{"_from": from, "_to": to}
	for k, v := range extra {
		doc[k] = v
	}
	query := fmt.Sprintf(`
		UPSERT { _from: @from, _to: @to }
		INSERT @doc
		UPDATE @doc
		IN %s
	`, collection)
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"from": from, "to": to, "doc": doc},
	})
	if err != nil {
		return err
	}
	return cursor.Close()
}

func (s *Store) linkPackage(ctx context.Context, pkgName, revisionKey string) error {
	query := `
		FOR p IN package
			FILTER p.name == @name
			LIMIT 1
			UPSERT { _from: p._id, _to: @to }
			INSERT { _from: p._id, _to: @to }
			UPDATE {}
			IN package2revision
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"name": pkgName, "to": "revision/" + revisionKey},
	})
	if err != nil {
		return err
	}
	return cursor.Close()
}

// linkVulnerabilities connects the revision to every vulnerability whose
// vuln2package edge lists this version as affected, plus any explicitly
// supplied vulnerability ids.
func (s *Store) linkVulnerabilities(ctx context.Context, pkgName, version, revisionKey string, vulnIDs []string) error {
	query := `
		FOR p IN package
			FILTER p.name == @name
			FOR e IN vuln2package
				FILTER e._to == p._id
				   AND @version IN e.versions
				UPSERT { _from: e._from, _to: @to }
				INSERT { _from: e._from, _to: @to, version: @version }
				UPDATE {}
				IN vuln2revision
	`
	cursor, err := s.DB.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"name":    pkgName,
			"version": version,
			"to":      "revision/" + revisionKey,
		},
	})
	if err != nil {
		return err
	}
	if err := cursor.Close(); err != nil {
		return err
	}

	for _, id := range vulnIDs {
		linkQuery := `
			FOR v IN vulnerability
				FILTER v.id == @id
				LIMIT 1
				UPSERT { _from: v._id, _to: @to }
				INSERT { _from: v._id, _to: @to, version: @version }
				UPDATE {}
				IN vuln2revision
		`
		cursor, err := s.DB.Database.Query(ctx, linkQuery, &arangodb.QueryOptions{
			BindVars: map[string]interface{}{
				"id":      id,
				"version": version,
				"to":      "revision/" + revisionKey,
			},
		})
		if err != nil {
			return err
		}
		if err := cursor.Close(); err != nil {
			return err
		}
	}

	return nil
}

// ExportPackageRecords rebuilds the solver's input mapping from the graph:
// one record per package with a purl, carrying every vulnerability id and its
// affected versions from the vuln2package edges.
func (s *Store) ExportPackageRecords(ctx context.Context) (model.PackageRecordSet, error) {
	query := `
		FOR p IN package
			FILTER p.purl != null AND p.purl != ""
			LET vulns = (
				FOR e IN vuln2package
					FILTER e._to == p._id
					LET v = DOCUMENT(e._from)
					FILTER v != null
					RETURN { id: v.id, versions: e.versions }
			)
			FILTER LENGTH(vulns) > 0
			RETURN { name: p.name, ecosystem: p.ecosystem, purl: p.purl, vulns: vulns }
	`
	cursor, err := s.DB.Database.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("export package records: %w", err)
	}
	defer cursor.Close()

	type vulnRow struct {
		ID       string   `json:"id"`
		Versions []string `json:"versions"`
	}
	type pkgRow struct {
		Name      string    `json:"name"`
		Ecosystem string    `json:"ecosystem"`
		Purl      string    `json:"purl"`
		Vulns     []vulnRow `json:"vulns"`
	}

	records := make(model.PackageRecordSet)
	for cursor.HasMore() {
		var row pkgRow
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, err
		}

		rec := model.NewPackageRecord(row.Name)
		rec.Ecosystem = row.Ecosystem
		rec.Purl = row.Purl
		for _, v := range row.Vulns {
			for _, version := range v.Versions {
				rec.AddVulnerabilityVersion(v.ID, version)
			}
		}
		records[row.Name] = rec
	}

	return records, nil
}

// CountVulnerabilities returns the number of vulnerability documents.
func (s *Store) CountVulnerabilities(ctx context.Context) (int64, error) {
	cursor, err := s.DB.Database.Query(ctx, "RETURN LENGTH(vulnerability)", nil)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	var count int64
	if cursor.HasMore() {
		if _, err := cursor.ReadDocument(ctx, &count); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// LastUpdated returns the most recent per-ecosystem sync timestamp, or the
// zero time when no sync has run.
func (s *Store) LastUpdated(ctx context.Context) (time.Time, error) {
	query := `
		FOR m IN metadata
			FILTER m.type == "ecosystem_metadata"
			SORT m.last_modified DESC
			LIMIT 1
			RETURN m.last_modified
	`
	cursor, err := s.DB.Database.Query(ctx, query, nil)
	if err != nil {
		return time.Time{}, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return time.Time{}, nil
	}

	var stamp string
	if _, err := cursor.ReadDocument(ctx, &stamp); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, stamp)
}
