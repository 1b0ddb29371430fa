// Package mongo implements chatrelay.MessageRepository on MongoDB.
//
// Messages are stored one document per message with a string _id, in the
// collection named by model.ChatMessage.TableName().
//
//	client, err := mongo.Connect(ctx, "mongodb://localhost:27017", 3, 2*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := mongo.NewMessageRepository(client.Database("chat"))
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/chatrelay"
	"github.com/coregx/chatrelay/model"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Connect opens a client and pings the primary, retrying up to attempts
// times to ride out cold starts of managed clusters.
func Connect(ctx context.Context, uri string, attempts int, interval time.Duration) (*mongodriver.Client, error) {
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeConfiguration, "invalid mongodb configuration", err)
	}

	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err = client.Ping(ctx, readpref.Primary())
		if err == nil {
			return client, nil
		}
		if i >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	_ = client.Disconnect(context.Background())
	return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase,
		fmt.Sprintf("mongodb unreachable after %d attempts", attempts), err)
}

// MessageRepository implements chatrelay.MessageRepository on a MongoDB collection.
type MessageRepository struct {
	coll *mongodriver.Collection
}

// NewMessageRepository creates a repository in db.
func NewMessageRepository(db *mongodriver.Database) *MessageRepository {
	return &MessageRepository{coll: db.Collection(model.ChatMessage{}.TableName())}
}

// Save inserts a new message and returns its id.
func (r *MessageRepository) Save(ctx context.Context, m model.ChatMessage) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return "", chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to insert message", err)
	}
	return m.ID, nil
}

// FindByID retrieves a message by id.
// Returns chatrelay.ErrNoData if the message does not exist.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return m, chatrelay.ErrNoData
	}
	if err != nil {
		return m, chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to load message", err)
	}
	return m, nil
}

// UpdateBody replaces the text of a message and marks it as updated.
func (r *MessageRepository) UpdateBody(ctx context.Context, id, body string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"content":      body,
			"message_type": model.MessageTypeUpdate,
		}},
	)
	if err != nil {
		return chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to update message body", err)
	}
	if res.MatchedCount == 0 {
		return chatrelay.ErrNoData
	}
	return nil
}

// DeleteByID removes a message. Deleting a missing message returns chatrelay.ErrNoData.
func (r *MessageRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to delete message", err)
	}
	if res.DeletedCount == 0 {
		return chatrelay.ErrNoData
	}
	return nil
}
