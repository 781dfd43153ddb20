package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"argus/core"
)

const enrichedAlertsCollection = "enriched_alerts"

// AlertCollection interface for mocking
type AlertCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// MongoSink persists enriched alerts to MongoDB. Records are append-only:
// every Store inserts a new document, nothing is ever updated in place.
type MongoSink struct {
	client     *mongo.Client
	collection AlertCollection
	logger     *zap.SugaredLogger
}

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(ctx context.Context, uri, database string, logger *zap.SugaredLogger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Infow("Connected to MongoDB", "database", database)
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(enrichedAlertsCollection),
		logger:     logger,
	}, nil
}

// NewMongoSinkWithCollection creates a sink over an existing collection.
// Used by tests to inject a mock collection.
func NewMongoSinkWithCollection(collection AlertCollection, logger *zap.SugaredLogger) *MongoSink {
	return &MongoSink{collection: collection, logger: logger}
}

// Store inserts one enrichment record.
func (s *MongoSink) Store(ctx context.Context, alert *core.EnrichedAlert) error {
	_, err := s.collection.InsertOne(ctx, alert)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateAlert
	}
	if err != nil {
		return fmt.Errorf("failed to insert enriched alert: %w", err)
	}
	return nil
}

// GetByID fetches a single enrichment record.
func (s *MongoSink) GetByID(ctx context.Context, id string) (*core.EnrichedAlert, error) {
	var alert core.EnrichedAlert
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if err == mongo.ErrNoDocuments {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch enriched alert: %w", err)
	}
	return &alert, nil
}

// Recent returns the newest enrichment records, newest first.
func (s *MongoSink) Recent(ctx context.Context, limit int) ([]*core.EnrichedAlert, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "enriched_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query enriched alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*core.EnrichedAlert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode enriched alerts: %w", err)
	}
	return alerts, nil
}

// CountMalicious returns the number of stored records flagged malicious.
func (s *MongoSink) CountMalicious(ctx context.Context) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"is_malicious": true})
}

// Close disconnects from MongoDB.
func (s *MongoSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
