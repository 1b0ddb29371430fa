package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/chatrelay"
	"github.com/coregx/chatrelay/model"
	"github.com/coregx/relica"
	"github.com/google/uuid"
)

// MessageRepository implements chatrelay.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "chat_"}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Save inserts a new message and returns its id.
// Ids are generated here so every driver gets the same string key.
func (r *MessageRepository) Save(ctx context.Context, m model.ChatMessage) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
	if err != nil {
		return "", chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to insert message", err)
	}
	return m.ID, nil
}

// FindByID retrieves a message by id.
// Returns chatrelay.ErrNoData if the message does not exist.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&m)
	if errors.Is(err, sql.ErrNoRows) {
		return m, chatrelay.ErrNoData
	}
	if err != nil {
		return m, chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to load message", err)
	}
	return m, nil
}

// UpdateBody replaces the text of a message and marks it as updated.
func (r *MessageRepository) UpdateBody(ctx context.Context, id, body string) error {
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"content":      body,
			"message_type": string(model.MessageTypeUpdate),
		}).
		Where("id = ?", id).
		WithContext(ctx).
		Execute()

	if err != nil {
		return chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to update message body", err)
	}
	return nil
}

// DeleteByID removes a message. Deleting a missing message returns chatrelay.ErrNoData.
func (r *MessageRepository) DeleteByID(ctx context.Context, id string) error {
	m, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	// Model() API derives WHERE id = ? from the struct
	err = r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete()
	if err != nil {
		return chatrelay.NewErrorWithCause(chatrelay.ErrCodeDatabase, "failed to delete message", err)
	}
	return nil
}
