// Package revisions implements the resolvers for revision snapshot data.
package revisions

import (
	"context"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/vuln2rev-mapper/database"
)

// ResolveRevision fetches one revision snapshot by repository and version.
func ResolveRevision(db database.DBConnection, repoName, version string) (map[string]interface{}, error) {
	ctx := context.Background()

	query := `
		FOR r IN revision
			FILTER r.repo_name == @repo_name AND r.version == @version
			LIMIT 1
			RETURN {
				key: r._key,
				repo_name: r.repo_name,
				repo_url: r.repo_url,
				version: r.version,
				version_major: r.version_major,
				version_minor: r.version_minor,
				version_patch: r.version_patch,
				commit_sha: r.commit_sha,
				total_bytes: r.total_bytes,
				analyzed_at: r.analyzed_at
			}
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"repo_name": repoName,
			"version":   version,
		},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, nil
	}

	var rev map[string]interface{}
	if _, err := cursor.ReadDocument(ctx, &rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// ResolveRepositoryRevisions lists every analyzed revision of a repository,
// newest version first.
func ResolveRepositoryRevisions(db database.DBConnection, repoName string) ([]map[string]interface{}, error) {
	ctx := context.Background()

	query := `
		FOR r IN revision
			FILTER r.repo_name == @repo_name
			SORT r.version_major DESC, r.version_minor DESC, r.version_patch DESC, r.version DESC
			RETURN {
				key: r._key,
				repo_name: r.repo_name,
				repo_url: r.repo_url,
				version: r.version,
				version_major: r.version_major,
				version_minor: r.version_minor,
				version_patch: r.version_patch,
				commit_sha: r.commit_sha,
				total_bytes: r.total_bytes,
				analyzed_at: r.analyzed_at
			}
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"repo_name": repoName},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var revisions []map[string]interface{}
	for cursor.HasMore() {
		var rev map[string]interface{}
		if _, err := cursor.ReadDocument(ctx, &rev); err != nil {
			continue
		}
		revisions = append(revisions, rev)
	}
	return revisions, nil
}

// ResolvePackageRevisions lists the analyzed revisions linked to a package
// through package2revision.
func ResolvePackageRevisions(db database.DBConnection, packageName string) ([]map[string]interface{}, error) {
	ctx := context.Background()

	query := `
		FOR p IN package
			FILTER p.name == @name
			FOR r IN 1..1 OUTBOUND p package2revision
				RETURN {
					key: r._key,
					repo_name: r.repo_name,
					repo_url: r.repo_url,
					version: r.version,
					version_major: r.version_major,
					version_minor: r.version_minor,
					version_patch: r.version_patch,
					commit_sha: r.commit_sha,
					total_bytes: r.total_bytes,
					analyzed_at: r.analyzed_at
				}
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"name": packageName},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var revisions []map[string]interface{}
	for cursor.HasMore() {
		var rev map[string]interface{}
		if _, err := cursor.ReadDocument(ctx, &rev); err != nil {
			continue
		}
		revisions = append(revisions, rev)
	}
	return revisions, nil
}

// ResolveRevisionLanguages fetches the language breakdown of a revision
// through revision2lang, largest share first.
func ResolveRevisionLanguages(db database.DBConnection, revisionKey string) ([]map[string]interface{}, error) {
	ctx := context.Background()

	query := `
		FOR lang, edge IN 1..1 OUTBOUND CONCAT("revision/", @key) revision2lang
			SORT lang.bytes DESC, lang.language ASC
			RETURN {
				language: lang.language,
				bytes: lang.bytes,
				percent: edge.percent
			}
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": revisionKey},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var langs []map[string]interface{}
	for cursor.HasMore() {
		var row map[string]interface{}
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			continue
		}
		langs = append(langs, row)
	}
	return langs, nil
}

// ResolveRevisionVulnerabilities lists the vulnerability ids linked to a
// revision through vuln2revision.
func ResolveRevisionVulnerabilities(db database.DBConnection, revisionKey string) ([]string, error) {
	ctx := context.Background()

	query := `
		FOR v IN 1..1 INBOUND CONCAT("revision/", @key) vuln2revision
			SORT v.id ASC
			RETURN v.id
	`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": revisionKey},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var ids []string
	for cursor.HasMore() {
		var id string
		if _, err := cursor.ReadDocument(ctx, &id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
