package model

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SendRequest is the body of a SEND frame addressed to chat.message.<channelId>.
type SendRequest struct {
	Content     string      `json:"content"`
	FileURL     string      `json:"fileUrl"`
	Writer      string      `json:"writer"`
	ChannelType ChannelType `json:"channelType"`
}

// Validate checks that the request carries text or an attachment.
func (r SendRequest) Validate() error {
	hasText := strings.TrimSpace(r.Content) != ""
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.When(r.FileURL == "", validation.Required)),
		validation.Field(&r.FileURL, validation.When(!hasText, validation.Required), validation.Length(0, 2048)),
		validation.Field(&r.Writer, validation.Length(0, 255)),
		validation.Field(&r.ChannelType, validation.In(ChannelTypeText, ChannelTypeFile)),
	)
}

// UpdateRequest is the body of a SEND frame addressed to chat.message.update.<channelId>.
type UpdateRequest struct {
	ChatID     string `json:"chatId"`
	ReqMessage string `json:"reqMessage"`
}

// Validate checks that both the target message and the revised body are present.
func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ChatID, validation.Required),
		validation.Field(&r.ReqMessage, validation.Required),
	)
}

// DeleteRequest identifies the message to remove.
type DeleteRequest struct {
	ChatID string `json:"chatId"`
}

// Validate checks that the target message id is present.
func (r DeleteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ChatID, validation.Required),
	)
}
