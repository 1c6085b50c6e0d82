package sink

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultMongoDatabase   = "edgeo"
	defaultMongoCollection = "tags"
)

// Mongo keeps the latest reading of every tag in one document per tag
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// OpenMongo connects to the server in uri. The database defaults to
// "edgeo" when the uri names none.
func OpenMongo(ctx context.Context, uri string, logger *slog.Logger) (*Mongo, error) {
	db, err := mongoDatabase(uri)
	if err != nil {
		return nil, err
	}
	client, err := mongo.NewClient(options.Client().ApplyURI(uri).SetAppName("edgeo-modbus"))
	if err != nil {
		return nil, fmt.Errorf("sink: mongo client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("sink: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("sink: mongo ping: %w", err)
	}
	return &Mongo{
		client:     client,
		collection: client.Database(db).Collection(defaultMongoCollection),
		logger:     logger,
	}, nil
}

func mongoDatabase(uri string) (string, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("sink: parse mongo uri: %w", err)
	}
	if cs.Database == "" {
		return defaultMongoDatabase, nil
	}
	return cs.Database, nil
}

// upsertDocument builds the update applied to the tag's document
func upsertDocument(r Reading) bson.D {
	return bson.D{{Key: "$set", Value: bson.M{
		"value":     r.Value,
		"error":     r.Error,
		"timestamp": r.Timestamp,
	}}}
}

func (m *Mongo) Write(ctx context.Context, r Reading) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"tag": r.Tag},
		upsertDocument(r),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("sink: mongo upsert %s: %w", r.Tag, err)
	}
	return nil
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}
