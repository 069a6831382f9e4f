// Package graphql assembles the root schema from the query modules. The
// database connection is passed in explicitly; there is no package-level
// handle.
package graphql

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/graphql/modules/coverage"
	"github.com/ortelius/vuln2rev-mapper/graphql/modules/revisions"
)

// CreateSchema builds the root query schema over the given connection.
func CreateSchema(db database.DBConnection) (graphql.Schema, error) {
	revisionType := revisions.GetRevisionType(db)

	fields := graphql.Fields{}
	for name, field := range coverage.GetQueryFields(db) {
		fields[name] = field
	}
	for name, field := range revisions.GetQueryFields(db, revisionType) {
		fields[name] = field
	}

	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: fields,
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
