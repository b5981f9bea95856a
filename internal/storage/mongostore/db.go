package mongostore

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// SchemaVersion is the layout version of the four storage collections.
// Bumping it is destructive: on mismatch the collections are dropped and
// recreated, not migrated. Documented behavior, inherited from the system
// this store replaces.
const SchemaVersion = 2

const (
	assetCollectionName      = "assets"
	videoBlobCollectionName  = "video_blobs"
	preferenceCollectionName = "preferences"
	apiKeyCollectionName     = "api_keys"
	schemaMetaCollectionName = "schema_meta"
)

// ConnectDB establishes a connection to MongoDB using the provided URI.
// It returns the mongo.Client which can be used to access databases and collections.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the primary node to verify the connection. A separate, shorter
	// context: the connect can succeed while the server is unresponsive.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	err = client.Ping(pingCtx, readpref.Primary())
	if err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

type schemaMeta struct {
	ID      string `bson:"_id"`
	Version int    `bson:"version"`
}

// initSchema brings the database to the current schema version and ensures
// all indexes. Two deliberate, non-obvious behaviors:
//
//   - version mismatch wipes the four storage collections (clean slate, no
//     row migration);
//   - if index creation fails even after the wipe, the whole database is
//     dropped and initialization retried exactly once (self-heal for a
//     corrupted or partially-upgraded database).
func initSchema(ctx context.Context, db *mongo.Database) error {
	if err := ensureSchemaVersion(ctx, db); err != nil {
		return err
	}
	if err := ensureIndexes(ctx, db); err != nil {
		log.Warn().Err(err).Str("database", db.Name()).
			Msg("Index creation failed; dropping database and retrying once")
		if dropErr := db.Drop(ctx); dropErr != nil {
			return dropErr
		}
		if err := ensureSchemaVersion(ctx, db); err != nil {
			return err
		}
		return ensureIndexes(ctx, db)
	}
	return nil
}

func ensureSchemaVersion(ctx context.Context, db *mongo.Database) error {
	meta := db.Collection(schemaMetaCollectionName)

	var current schemaMeta
	err := meta.FindOne(ctx, bson.M{"_id": "schema"}).Decode(&current)
	if err == nil && current.Version == SchemaVersion {
		return nil
	}
	if err != nil && err != mongo.ErrNoDocuments {
		return err
	}

	if err == nil && current.Version != SchemaVersion {
		log.Warn().
			Int("stored_version", current.Version).
			Int("schema_version", SchemaVersion).
			Msg("Schema version mismatch; dropping storage collections (non-migrating upgrade)")
		for _, name := range []string{assetCollectionName, videoBlobCollectionName, preferenceCollectionName, apiKeyCollectionName} {
			if dropErr := db.Collection(name).Drop(ctx); dropErr != nil {
				return dropErr
			}
		}
	}

	upsert := true
	_, err = meta.ReplaceOne(ctx,
		bson.M{"_id": "schema"},
		schemaMeta{ID: "schema", Version: SchemaVersion},
		&options.ReplaceOptions{Upsert: &upsert},
	)
	return err
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	assetIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userKey", Value: 1}}},
		{Keys: bson.D{{Key: "teamKey", Value: 1}}},
		{Keys: bson.D{{Key: "isTeam", Value: 1}}},
		{Keys: bson.D{{Key: "fileHash", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tags.status", Value: 1}}},
		{Keys: bson.D{{Key: "sourceAssetId", Value: 1}}},
	}
	if _, err := db.Collection(assetCollectionName).Indexes().CreateMany(ctx, assetIndexes); err != nil {
		return err
	}

	blobIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userKey", Value: 1}}},
	}
	if _, err := db.Collection(videoBlobCollectionName).Indexes().CreateMany(ctx, blobIndexes); err != nil {
		return err
	}

	// preferences and api_keys are keyed by user key directly (_id), no
	// secondary indexes needed.
	return nil
}
