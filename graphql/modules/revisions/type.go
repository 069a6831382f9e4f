// Package revisions defines the GraphQL types for revision snapshots.
package revisions

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/vuln2rev-mapper/database"
)

// LanguageStatType represents one language's share of a revision's working
// tree.
var LanguageStatType = graphql.NewObject(graphql.ObjectConfig{
	Name: "LanguageStat",
	Fields: graphql.Fields{
		"language": &graphql.Field{Type: graphql.String},
		"bytes":    &graphql.Field{Type: graphql.Int},
		"percent":  &graphql.Field{Type: graphql.Float},
	},
})

// GetRevisionType returns the Revision type with its traversal fields bound
// to the database connection.
func GetRevisionType(db database.DBConnection) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Revision",
		Fields: graphql.Fields{
			"key":           &graphql.Field{Type: graphql.String},
			"repo_name":     &graphql.Field{Type: graphql.String},
			"repo_url":      &graphql.Field{Type: graphql.String},
			"version":       &graphql.Field{Type: graphql.String},
			"version_major": &graphql.Field{Type: graphql.Int},
			"version_minor": &graphql.Field{Type: graphql.Int},
			"version_patch": &graphql.Field{Type: graphql.Int},
			"commit_sha":    &graphql.Field{Type: graphql.String},
			"total_bytes":   &graphql.Field{Type: graphql.Int},
			"analyzed_at":   &graphql.Field{Type: graphql.String},
			"languages": &graphql.Field{
				Type: graphql.NewList(LanguageStatType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					rev, ok := p.Source.(map[string]interface{})
					if !ok {
						return []map[string]interface{}{}, nil
					}
					key, _ := rev["key"].(string)
					return ResolveRevisionLanguages(db, key)
				},
			},
			"vulnerabilities": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					rev, ok := p.Source.(map[string]interface{})
					if !ok {
						return []string{}, nil
					}
					key, _ := rev["key"].(string)
					return ResolveRevisionVulnerabilities(db, key)
				},
			},
		},
	})
}
