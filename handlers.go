package chatrelay

import (
	"context"
	"fmt"

	"github.com/coregx/chatrelay/model"
)

// MessagePublisher publishes a persisted message to its channel.
// Publisher implements it.
type MessagePublisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) (*PublishResult, error)
}

// CommandHandlers implements the send, update and delete commands.
//
// Every outcome, success or failure, is reported as a Response on the
// channel's topic destination. The returned error only tells the caller
// what was already reported, for logging.
type CommandHandlers struct {
	publisher MessagePublisher
	store     MessageRepository
	delivery  LocalDelivery
	logger    Logger
}

// HandlersOption configures CommandHandlers.
type HandlersOption func(*CommandHandlers) error

// NewCommandHandlers creates command handlers with the provided options.
//
// Required options:
//   - WithHandlersPublisher: publish pipeline
//   - WithHandlersRepository: message persistence
//   - WithHandlersDelivery: where responses are delivered
//   - WithHandlersLogger: logger instance
func NewCommandHandlers(opts ...HandlersOption) (*CommandHandlers, error) {
	h := &CommandHandlers{}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply handlers option", err)
		}
	}

	if h.publisher == nil {
		return nil, NewError(ErrCodeConfiguration, "MessagePublisher is required (use WithHandlersPublisher)")
	}
	if h.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithHandlersRepository)")
	}
	if h.delivery == nil {
		return nil, NewError(ErrCodeConfiguration, "LocalDelivery is required (use WithHandlersDelivery)")
	}
	if h.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithHandlersLogger)")
	}

	return h, nil
}

// WithHandlersPublisher sets the publish pipeline used by Send.
func WithHandlersPublisher(publisher MessagePublisher) HandlersOption {
	return func(h *CommandHandlers) error {
		if publisher == nil {
			return fmt.Errorf("publisher cannot be nil")
		}
		h.publisher = publisher
		return nil
	}
}

// WithHandlersRepository sets the message repository.
func WithHandlersRepository(store MessageRepository) HandlersOption {
	return func(h *CommandHandlers) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		h.store = store
		return nil
	}
}

// WithHandlersDelivery sets where command responses are delivered.
func WithHandlersDelivery(delivery LocalDelivery) HandlersOption {
	return func(h *CommandHandlers) error {
		if delivery == nil {
			return fmt.Errorf("delivery cannot be nil")
		}
		h.delivery = delivery
		return nil
	}
}

// WithHandlersLogger sets the logger.
func WithHandlersLogger(logger Logger) HandlersOption {
	return func(h *CommandHandlers) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		h.logger = logger
		return nil
	}
}

// Send persists a new message and publishes it to the channel.
// Invalid input is rejected before anything is stored.
func (h *CommandHandlers) Send(ctx context.Context, channelID, identity string, req model.SendRequest) error {
	err := h.send(ctx, channelID, identity, req)
	if err != nil {
		h.fail(ctx, channelID, failureText(err, MsgSendFailed), err)
	}
	return err
}

func (h *CommandHandlers) send(ctx context.Context, channelID, identity string, req model.SendRequest) error {
	if err := req.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeInvalidArgument, MsgInvalidContent, err)
	}
	if identity == "" {
		return NewError(ErrCodeUnauthorized, "no identity bound to session")
	}

	msg := model.NewChatMessage(channelID, identity, req.Writer, req.Content, req.FileURL)
	if req.ChannelType != "" {
		msg.ChannelType = req.ChannelType
	}

	id, err := h.store.Save(ctx, msg)
	if err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to save message", err)
	}
	msg.ID = id

	result, err := h.publisher.Publish(ctx, msg)
	if err != nil {
		return err
	}

	h.logger.Infof("Message sent: id=%s, channel=%s, duplicate=%t", id, channelID, result.Duplicate)
	return nil
}

// Update revises the text of a message. Only its author may do so.
// On success the channel receives a response carrying chatId and reqMessage.
func (h *CommandHandlers) Update(ctx context.Context, channelID, identity string, req model.UpdateRequest) error {
	err := h.update(ctx, identity, req)
	if err != nil {
		h.fail(ctx, channelID, failureText(err, MsgUpdateFailed), err)
		return err
	}

	resp := Success(MsgUpdated)
	resp.ChatID = req.ChatID
	resp.ReqMessage = req.ReqMessage

	h.logger.Infof("Message updated: id=%s, channel=%s", req.ChatID, channelID)
	return h.respond(ctx, channelID, resp)
}

func (h *CommandHandlers) update(ctx context.Context, identity string, req model.UpdateRequest) error {
	if identity == "" {
		return NewError(ErrCodeUnauthorized, "no identity bound to session")
	}
	if err := req.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeInvalidArgument, "invalid update request", err)
	}

	if _, err := h.loadOwned(ctx, req.ChatID, identity); err != nil {
		return err
	}

	if err := h.store.UpdateBody(ctx, req.ChatID, req.ReqMessage); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to update message", err)
	}
	return nil
}

// Delete removes a message. Only its author may do so.
// On success the channel receives a response carrying deletedChatId.
func (h *CommandHandlers) Delete(ctx context.Context, channelID, identity string, req model.DeleteRequest) error {
	err := h.delete(ctx, identity, req)
	if err != nil {
		h.fail(ctx, channelID, failureText(err, MsgDeleteFailed), err)
		return err
	}

	resp := Success(MsgDeleted)
	resp.DeletedChatID = req.ChatID

	h.logger.Infof("Message deleted: id=%s, channel=%s", req.ChatID, channelID)
	return h.respond(ctx, channelID, resp)
}

func (h *CommandHandlers) delete(ctx context.Context, identity string, req model.DeleteRequest) error {
	if identity == "" {
		return NewError(ErrCodeUnauthorized, "no identity bound to session")
	}
	if err := req.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeInvalidArgument, "invalid delete request", err)
	}

	if _, err := h.loadOwned(ctx, req.ChatID, identity); err != nil {
		return err
	}

	if err := h.store.DeleteByID(ctx, req.ChatID); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to delete message", err)
	}
	return nil
}

// loadOwned fetches a message and checks that identity authored it.
func (h *CommandHandlers) loadOwned(ctx context.Context, chatID, identity string) (model.ChatMessage, error) {
	msg, err := h.store.FindByID(ctx, chatID)
	if err != nil {
		if IsNoData(err) {
			return msg, NewErrorWithCause(ErrCodeNotFound, MsgNotFound, err)
		}
		return msg, NewErrorWithCause(ErrCodeDatabase, "failed to load message", err)
	}
	if !msg.IsAuthoredBy(identity) {
		return msg, NewError(ErrCodeForbidden, MsgPermissionDenied)
	}
	return msg, nil
}

// fail reports a failed command on the channel topic.
func (h *CommandHandlers) fail(ctx context.Context, channelID, text string, cause error) {
	h.logger.Warnf("Command failed: channel=%s, result=%q, error=%v", channelID, text, cause)
	if err := h.respond(ctx, channelID, Failure(text)); err != nil {
		h.logger.Errorf("Failed to report command result: channel=%s, error=%v", channelID, err)
	}
}

func (h *CommandHandlers) respond(ctx context.Context, channelID string, resp Response) error {
	payload, err := encodeResponse(resp)
	if err != nil {
		return NewErrorWithCause(ErrCodeSerialization, "failed to encode response", err)
	}
	if err := h.delivery.PublishToTopic(ctx, TopicDestination(channelID), payload); err != nil {
		return NewErrorWithCause(ErrCodeDelivery, "failed to deliver response", err)
	}
	return nil
}

// failureText maps an error to the client-visible result text.
// Anything unclassified gets fallback.
func failureText(err error, fallback string) string {
	switch CodeOf(err) {
	case ErrCodeUnauthorized:
		return MsgTokenInvalid
	case ErrCodeNotFound:
		return MsgNotFound
	case ErrCodeForbidden:
		return MsgPermissionDenied
	case ErrCodeInvalidArgument:
		if fallback == MsgSendFailed {
			return MsgInvalidContent
		}
		return fallback
	default:
		return fallback
	}
}
