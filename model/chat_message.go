package model

import (
	"strings"
	"time"
)

// ChatMessage is the transport and storage representation of a chat message.
// Email is the author identity and Writer the display name.
//
// A message carries text, an attachment reference, or both; one of them must
// be non-empty. The ID is assigned by the persistence layer when the message
// is first saved. After publication the only mutation is a body revision
// through the Update command.
type ChatMessage struct {
	ID          string      `json:"chatId" db:"id" bson:"_id"`
	ChannelID   string      `json:"channelId" db:"channel_id" bson:"channel_id"`
	Email       string      `json:"email" db:"email" bson:"email"`
	Writer      string      `json:"writer" db:"writer" bson:"writer"`
	Content     string      `json:"content,omitempty" db:"content" bson:"content"`
	FileURL     string      `json:"fileUrl,omitempty" db:"file_url" bson:"file_url"`
	ChannelType ChannelType `json:"channelType" db:"channel_type" bson:"channel_type"`
	MessageType MessageType `json:"messageType" db:"message_type" bson:"message_type"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at" bson:"created_at"`
}

// TableName returns the database table name for ChatMessage.
func (m ChatMessage) TableName() string {
	return tablePrefix + "message"
}

// NewChatMessage builds a message of type MESSAGE for a channel.
// The channel type defaults to FILE when only an attachment is present
// and to TEXT otherwise.
func NewChatMessage(channelID, email, writer, content, fileURL string) ChatMessage {
	channelType := ChannelTypeText
	if strings.TrimSpace(content) == "" && fileURL != "" {
		channelType = ChannelTypeFile
	}

	return ChatMessage{
		ChannelID:   channelID,
		Email:       email,
		Writer:      writer,
		Content:     content,
		FileURL:     fileURL,
		ChannelType: channelType,
		MessageType: MessageTypeMessage,
		CreatedAt:   time.Now(),
	}
}

// HasBody reports whether the message has text or an attachment.
func (m ChatMessage) HasBody() bool {
	return strings.TrimSpace(m.Content) != "" || strings.TrimSpace(m.FileURL) != ""
}

// IsAuthoredBy reports whether identity wrote the message.
func (m ChatMessage) IsAuthoredBy(identity string) bool {
	return identity != "" && m.Email == identity
}

// Revise replaces the text body and marks the message as updated.
func (m *ChatMessage) Revise(content string) {
	m.Content = content
	m.MessageType = MessageTypeUpdate
}
