package chatrelay

import (
	"github.com/coregx/chatrelay/model"
	"github.com/segmentio/encoding/json"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Client-visible result texts.
const (
	MsgInvalidContent   = "Invalid message content"
	MsgSendFailed       = "Failed to send message"
	MsgPermissionDenied = "Permission denied"
	MsgNotFound         = "Chat message not found"
	MsgUpdated          = "Message updated successfully"
	MsgUpdateFailed     = "Failed to update message"
	MsgDeleted          = "Message deleted"
	MsgDeleteFailed     = "Failed to delete message"
	MsgTokenInvalid     = "Token validation failed"
)

// Response is the structured result of a command, delivered on the same
// channel topic the command targeted.
type Response struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	ChatID        string `json:"chatId,omitempty"`
	ReqMessage    string `json:"reqMessage,omitempty"`
	DeletedChatID string `json:"deletedChatId,omitempty"`
}

// Success builds a success response.
func Success(message string) Response {
	return Response{Status: StatusSuccess, Message: message}
}

// Failure builds an error response.
func Failure(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// encodeResponse marshals a response for delivery.
func encodeResponse(r Response) ([]byte, error) {
	return json.Marshal(r)
}

// EncodeMessage marshals a chat message into its wire form.
func EncodeMessage(m model.ChatMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeSerialization, "failed to encode message", err)
	}
	return b, nil
}

// DecodeMessage parses a wire payload into a chat message.
// Payloads without a channel id or body are rejected.
func DecodeMessage(payload []byte) (model.ChatMessage, error) {
	var m model.ChatMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, NewErrorWithCause(ErrCodeSerialization, "malformed message payload", err)
	}
	if m.ChannelID == "" || !m.HasBody() {
		return m, NewError(ErrCodeSerialization, "message payload lacks channel or body")
	}
	return m, nil
}
