// Package database - Handles all interaction with ArangoDB
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = InitLogger() // setup the logger

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxField   string
}

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// InitLogger sets up the Zap Logger to log to the console in a human readable format
func InitLogger() *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	logger, _ := prodConfig.Build()
	return logger
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// InitializeDatabase connects to the db engine and creates the database,
// collections and indexes. The returned connection is constructed once in
// main and passed to every component that needs it; there is no package-level
// shared handle.
func InitializeDatabase() DBConnection {
	const initialInterval = 10 * time.Second
	const maxInterval = 2 * time.Minute

	var db arangodb.Database
	var collections map[string]arangodb.Collection
	const databaseName = "vulnmgt"

	ctx := context.Background()

	False := false
	True := true
	dbhost := GetEnvDefault("ARANGO_HOST", "localhost")
	dbport := GetEnvDefault("ARANGO_PORT", "8529")
	dbuser := GetEnvDefault("ARANGO_USER", "root")
	dbpass := GetEnvDefault("ARANGO_PASS", "mypassword")
	dburl := GetEnvDefault("ARANGO_URL", "http://"+dbhost+":"+dbport)

	var client arangodb.Client

	//
	// Database connection with backoff retry
	//

	// Configure exponential backoff
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = 0 // Set to 0 for indefinite retries

	// Retry logic
	err := backoff.RetryNotify(func() error {
		fmt.Println("Attempting to connect to ArangoDB")
		endpoint := connection.NewRoundRobinEndpoints([]string{dburl})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, dbuser, dbpass))

		client = arangodb.NewClient(conn)

		// Ask the version of the server
		versionInfo, err := client.Version(context.Background())
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'\n", versionInfo.Version, versionInfo.License)
		return nil

	}, bo, func(err error, _ time.Duration) {
		fmt.Printf("Retrying connection to ArangoDB: %v\n", err)
	})

	if err != nil {
		logger.Sugar().Fatalf("Backoff Error %v\n", err)
	}

	//
	// Database creation
	//

	exists := false
	dblist, _ := client.Databases(ctx)

	for _, dbinfo := range dblist {
		if dbinfo.Name() == databaseName {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		if db, err = client.GetDatabase(ctx, databaseName, &options); err != nil {
			logger.Sugar().Fatalf("Failed to get Database: %v", err)
		}
	} else {
		if db, err = client.CreateDatabase(ctx, databaseName, nil); err != nil {
			logger.Sugar().Fatalf("Failed to create Database: %v", err)
		}
	}

	//
	// Collection creation for document storage
	//

	collections = make(map[string]arangodb.Collection)
	// "metadata" holds per-ecosystem sync high-water marks
	collectionNames := []string{"package", "vulnerability", "repo", "revision", "langstat", "metadata"}

	for _, collectionName := range collectionNames {
		var col arangodb.Collection

		exists, _ = db.CollectionExists(ctx, collectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, collectionName, &options); err != nil {
				logger.Sugar().Fatalf("Failed to use collection: %v", err)
			}
		} else {
			if col, err = db.CreateCollectionV2(ctx, collectionName, nil); err != nil {
				logger.Sugar().Fatalf("Failed to create collection: %v", err)
			}
		}

		collections[collectionName] = col
	}

	//
	// Edge collection creation
	//

	edgeCollectionNames := []string{"vuln2package", "repo2revision", "revision2lang", "package2revision", "vuln2revision"}

	for _, edgeCollectionName := range edgeCollectionNames {
		var col arangodb.Collection

		exists, _ = db.CollectionExists(ctx, edgeCollectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, edgeCollectionName, &options); err != nil {
				logger.Sugar().Fatalf("Failed to use edge collection: %v", err)
			}
		} else {
			edgeType := arangodb.CollectionTypeEdge
			if col, err = db.CreateCollectionV2(ctx, edgeCollectionName, &arangodb.CreateCollectionPropertiesV2{
				Type: &edgeType,
			}); err != nil {
				logger.Sugar().Fatalf("Failed to create edge collection: %v", err)
			}
		}

		collections[edgeCollectionName] = col
	}

	//
	// Index creation for document collections
	//

	idxList := []indexConfig{
		// Vulnerability collection indexes
		{Collection: "vulnerability", IdxName: "vuln_id", IdxField: "id"},
		{Collection: "vulnerability", IdxName: "vuln_severity_rating", IdxField: "database_specific.severity_rating"},
		{Collection: "vulnerability", IdxName: "vuln_severity_score", IdxField: "database_specific.cvss_base_score"},
		{Collection: "vulnerability", IdxName: "vuln_modified", IdxField: "modified"},

		// Package collection indexes
		{Collection: "package", IdxName: "package_name", IdxField: "name"},
		{Collection: "package", IdxName: "package_ecosystem", IdxField: "ecosystem"},

		// Repo collection indexes
		{Collection: "repo", IdxName: "repo_url", IdxField: "url"},

		// Revision collection indexes for snapshot lookup
		{Collection: "revision", IdxName: "revision_repo_name", IdxField: "repo_name"},
		{Collection: "revision", IdxName: "revision_version", IdxField: "version"},
		{Collection: "revision", IdxName: "revision_commit", IdxField: "commit_sha"},

		// Langstat content-keyed lookup
		{Collection: "langstat", IdxName: "langstat_language", IdxField: "language"},

		// Edge collection indexes for optimized traversals. The _to indexes
		// are what keep the idempotency probes O(log n) with 400K+ edges.
		{Collection: "vuln2package", IdxName: "vuln2package_from", IdxField: "_from"},
		{Collection: "vuln2package", IdxName: "vuln2package_to", IdxField: "_to"},
		{Collection: "vuln2package", IdxName: "vuln2package_ecosystem", IdxField: "ecosystem"},

		{Collection: "repo2revision", IdxName: "repo2revision_from", IdxField: "_from"},
		{Collection: "repo2revision", IdxName: "repo2revision_to", IdxField: "_to"},

		{Collection: "revision2lang", IdxName: "revision2lang_from", IdxField: "_from"},
		{Collection: "revision2lang", IdxName: "revision2lang_to", IdxField: "_to"},

		{Collection: "package2revision", IdxName: "package2revision_from", IdxField: "_from"},
		{Collection: "package2revision", IdxName: "package2revision_to", IdxField: "_to"},

		{Collection: "vuln2revision", IdxName: "vuln2revision_from", IdxField: "_from"},
		{Collection: "vuln2revision", IdxName: "vuln2revision_to", IdxField: "_to"},
	}

	for _, idx := range idxList {
		found := false

		if indexes, err := collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if !found {
			// Define the index options
			indexOptions := arangodb.CreatePersistentIndexOptions{
				Unique: &False,
				Sparse: &False,
				Name:   idx.IdxName,
			}

			// Create the index
			_, _, err = collections[idx.Collection].EnsurePersistentIndex(ctx, []string{idx.IdxField}, &indexOptions)
			if err != nil {
				logger.Sugar().Fatalln("Error creating index:", err)
			} else {
				logger.Sugar().Infof("Created index: %s on %s.%s", idx.IdxName, idx.Collection, idx.IdxField)
			}
		}
	}

	//
	// Create composite indexes (multi-field indexes)
	//

	// Composite unique index for revision snapshot identity (repo + version).
	// The snapshotExists probe and the upsert both key off this pair.
	revisionRepoVersionIdx := "revision_repo_version"
	found := false
	if indexes, err := collections["revision"].Indexes(ctx); err == nil {
		for _, index := range indexes {
			if revisionRepoVersionIdx == index.Name {
				found = true
				break
			}
		}
	}
	if !found {
		uniqueIdxOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &True,
			Sparse: &False,
			Name:   revisionRepoVersionIdx,
		}
		_, _, err = collections["revision"].EnsurePersistentIndex(ctx, []string{"repo_name", "version"}, &uniqueIdxOptions)
		if err != nil {
			logger.Sugar().Fatalln("Error creating composite index:", err)
		} else {
			logger.Sugar().Infof("Created composite index: %s on revision", revisionRepoVersionIdx)
		}
	}

	// Composite index for package lookup by name + ecosystem
	packageNameEcosystemIdx := "package_name_ecosystem"
	found = false
	if indexes, err := collections["package"].Indexes(ctx); err == nil {
		for _, index := range indexes {
			if packageNameEcosystemIdx == index.Name {
				found = true
				break
			}
		}
	}
	if !found {
		compositeIdxOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &False,
			Sparse: &False,
			Name:   packageNameEcosystemIdx,
		}
		_, _, err = collections["package"].EnsurePersistentIndex(ctx, []string{"name", "ecosystem"}, &compositeIdxOptions)
		if err != nil {
			logger.Sugar().Fatalln("Error creating composite index:", err)
		} else {
			logger.Sugar().Infof("Created composite index: %s on package", packageNameEcosystemIdx)
		}
	}

	// Unique index on package purl to prevent duplicate hubs
	packagePurlIdx := "package_purl_unique"
	found = false
	if indexes, err := collections["package"].Indexes(ctx); err == nil {
		for _, index := range indexes {
			if packagePurlIdx == index.Name {
				found = true
				break
			}
		}
	}
	if !found {
		uniqueIdxOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &True,
			Sparse: &True, // packages without a purl stay out of the index
			Name:   packagePurlIdx,
		}
		_, _, err = collections["package"].EnsurePersistentIndex(ctx, []string{"purl"}, &uniqueIdxOptions)
		if err != nil {
			logger.Sugar().Fatalln("Error creating unique index on package purl:", err)
		} else {
			logger.Sugar().Infof("Created unique index: %s on package", packagePurlIdx)
		}
	}

	// Unique index on repo name to prevent duplicates
	repoNameUniqueIdx := "repo_name_unique"
	found = false
	if indexes, err := collections["repo"].Indexes(ctx); err == nil {
		for _, index := range indexes {
			if repoNameUniqueIdx == index.Name {
				found = true
				break
			}
		}
	}
	if !found {
		uniqueIdxOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &True,
			Sparse: &False,
			Name:   repoNameUniqueIdx,
		}
		_, _, err = collections["repo"].EnsurePersistentIndex(ctx, []string{"name"}, &uniqueIdxOptions)
		if err != nil {
			logger.Sugar().Fatalln("Error creating unique index on repo name:", err)
		} else {
			logger.Sugar().Infof("Created unique index: %s on repo", repoNameUniqueIdx)
		}
	}

	dbConnection := DBConnection{
		Database:    db,
		Collections: collections,
	}

	logger.Sugar().Infof("Database initialization complete with revision snapshot indexes")

	return dbConnection
}

// FindRevisionKey checks if a revision snapshot exists for a (repository,
// version) pair and returns its key, or "" when absent.
func FindRevisionKey(ctx context.Context, db arangodb.Database, repoName, version string) (string, error) {
	query := `
		FOR r IN revision
			FILTER r.repo_name == @repo_name
			   AND r.version == @version
			LIMIT 1
			RETURN r._key
	`
	bindVars := map[string]interface{}{
		"repo_name": repoName,
		"version":   version,
	}

	cursor, err := db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return "", err
	}
	defer cursor.Close()

	if cursor.HasMore() {
		var key string
		_, err := cursor.ReadDocument(ctx, &key)
		if err != nil {
			return "", err
		}
		return key, nil
	}

	return "", nil
}
