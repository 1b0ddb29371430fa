package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatMessage_TableName(t *testing.T) {
	msg := ChatMessage{}
	assert.Equal(t, "chat_message", msg.TableName())
}

func TestNewChatMessage(t *testing.T) {
	msg := NewChatMessage("c1", "alice@example.com", "Alice", "hello", "")

	assert.Equal(t, "", msg.ID)
	assert.Equal(t, "c1", msg.ChannelID)
	assert.Equal(t, "alice@example.com", msg.Email)
	assert.Equal(t, "Alice", msg.Writer)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, ChannelTypeText, msg.ChannelType)
	assert.Equal(t, MessageTypeMessage, msg.MessageType)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Second)
}

func TestNewChatMessage_FileOnly(t *testing.T) {
	msg := NewChatMessage("c1", "alice@example.com", "Alice", "", "https://files.example.com/a.png")

	assert.Equal(t, ChannelTypeFile, msg.ChannelType)
	assert.True(t, msg.HasBody())
}

func TestChatMessage_HasBody(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		fileURL  string
		expected bool
	}{
		{"text only", "hi", "", true},
		{"file only", "", "https://files/a.png", true},
		{"both", "hi", "https://files/a.png", true},
		{"empty", "", "", false},
		{"whitespace", "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ChatMessage{Content: tt.content, FileURL: tt.fileURL}
			assert.Equal(t, tt.expected, msg.HasBody())
		})
	}
}

func TestChatMessage_IsAuthoredBy(t *testing.T) {
	msg := ChatMessage{Email: "alice@example.com"}

	assert.True(t, msg.IsAuthoredBy("alice@example.com"))
	assert.False(t, msg.IsAuthoredBy("bob@example.com"))
	assert.False(t, msg.IsAuthoredBy(""))
}

func TestChatMessage_Revise(t *testing.T) {
	msg := NewChatMessage("c1", "alice@example.com", "Alice", "first", "")

	msg.Revise("second")

	assert.Equal(t, "second", msg.Content)
	assert.Equal(t, MessageTypeUpdate, msg.MessageType)
}
