// Package model contains the chat domain models exchanged between clients,
// the relay core and the persistence adapters.
package model

const tablePrefix = "chat_"

// ChannelType is the kind of channel a message was written to.
type ChannelType string

// Channel types.
const (
	ChannelTypeText ChannelType = "TEXT"
	ChannelTypeFile ChannelType = "FILE"
)

// MessageType marks what a transport message represents.
type MessageType string

// Message types.
const (
	MessageTypeMessage MessageType = "MESSAGE"
	MessageTypeUpdate  MessageType = "UPDATE"
	MessageTypeDelete  MessageType = "DELETE"
)
