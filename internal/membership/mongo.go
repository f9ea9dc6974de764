package membership

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/constants"
	"github.com/real-rm/chatrelay/internal/util"
)

// memberDocument is the membership projection read from MongoDB.
type memberDocument struct {
	RoomID string `bson:"roomId"`
	UserID string `bson:"uid"`
}

// MongoResolver reads room membership from the chat_room_members collection
// maintained by the persistence service.
type MongoResolver struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ Resolver = (*MongoResolver)(nil)

// NewMongoResolver connects to MongoDB and targets the membership collection.
func NewMongoResolver(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoResolver, error) {
	connectCtx, cancel := context.WithTimeout(ctx, constants.MongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoResolver{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.Named("membership.mongo"),
	}, nil
}

// Recipients implements Resolver.
func (r *MongoResolver) Recipients(ctx context.Context, chatRoomID string) ([]string, error) {
	if chatRoomID == "" {
		return nil, ErrInvalidRoomID
	}

	queryCtx, cancel := context.WithTimeout(ctx, constants.DefaultContextTimeout)
	defer cancel()

	cursor, err := r.collection.Find(queryCtx, bson.M{constants.MongoFieldRoomID: chatRoomID})
	if err != nil {
		util.LogError(r.logger, "membership", "query room members", err,
			zap.String("chat_room_id", chatRoomID))
		return nil, fmt.Errorf("failed to query room members: %w", err)
	}
	defer cursor.Close(queryCtx)

	var recipients []string
	for cursor.Next(queryCtx) {
		var doc memberDocument
		if err := cursor.Decode(&doc); err != nil {
			util.LogError(r.logger, "membership", "decode member document", err,
				zap.String("chat_room_id", chatRoomID))
			continue
		}
		if doc.UserID != "" {
			recipients = append(recipients, doc.UserID)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room members: %w", err)
	}

	return recipients, nil
}

// Ping reports whether the membership store is reachable.
func (r *MongoResolver) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close releases the underlying client.
func (r *MongoResolver) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
