package chatrelay

import (
	"bytes"
	"context"
	"strings"

	"github.com/coregx/chatrelay/model"
	"github.com/segmentio/encoding/json"
)

// Operation is a client command addressed to the application.
type Operation int

// Operations resolvable from a SEND destination.
const (
	OpSend Operation = iota + 1
	OpUpdate
	OpDelete
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpSend:
		return "send"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Route is a resolved application destination.
type Route struct {
	Op        Operation
	ChannelID string
}

// Router maps application destinations to command handlers and runs the
// handlers on the command worker pool.
type Router struct {
	handlers *CommandHandlers
	pool     *WorkerPool
	logger   Logger
}

// NewRouter creates a router dispatching to handlers on pool.
func NewRouter(handlers *CommandHandlers, pool *WorkerPool, logger Logger) (*Router, error) {
	if handlers == nil {
		return nil, NewError(ErrCodeConfiguration, "CommandHandlers is required")
	}
	if pool == nil {
		return nil, NewError(ErrCodeConfiguration, "WorkerPool is required")
	}
	if logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}
	return &Router{handlers: handlers, pool: pool, logger: logger}, nil
}

// Resolve parses one of
//
//	/pub/chat.message.<channelId>
//	/pub/chat.message.update.<channelId>
//	/pub/chat.message.delete.<channelId>
//
// The /pub prefix is optional. A channel id is a single non-empty segment
// without dots.
func (r *Router) Resolve(destination string) (Route, bool) {
	dest := strings.TrimPrefix(destination, applicationPrefix)
	dest = strings.TrimPrefix(dest, "/")

	for _, c := range []struct {
		prefix string
		op     Operation
	}{
		{updateDestination, OpUpdate},
		{deleteDestination, OpDelete},
		{sendDestination, OpSend},
	} {
		id, ok := strings.CutPrefix(dest, c.prefix)
		if !ok {
			continue
		}
		if id == "" || strings.ContainsAny(id, "./") {
			return Route{}, false
		}
		return Route{Op: c.op, ChannelID: id}, true
	}
	return Route{}, false
}

// Dispatch schedules the handler for route on the command pool. Results are
// reported on the channel topic by the handler itself; the returned error is
// only set when the command could not be scheduled.
//
// The handler runs detached from ctx cancellation so a command accepted
// before the client disconnects still completes.
func (r *Router) Dispatch(ctx context.Context, route Route, identity string, body []byte) error {
	taskCtx := context.WithoutCancel(ctx)

	err := r.pool.Submit(ctx, func() {
		if err := r.handle(taskCtx, route, identity, body); err != nil {
			r.logger.Debugf("Command %s on channel %s reported failure: %v", route.Op, route.ChannelID, err)
		}
	})
	if err != nil {
		r.logger.Errorf("Failed to schedule %s command for channel %s: %v", route.Op, route.ChannelID, err)
	}
	return err
}

func (r *Router) handle(ctx context.Context, route Route, identity string, body []byte) error {
	switch route.Op {
	case OpSend:
		var req model.SendRequest
		if err := json.Unmarshal(body, &req); err != nil {
			// An unreadable body is reported like an empty one.
			req = model.SendRequest{}
		}
		return r.handlers.Send(ctx, route.ChannelID, identity, req)

	case OpUpdate:
		var req model.UpdateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			req = model.UpdateRequest{}
		}
		return r.handlers.Update(ctx, route.ChannelID, identity, req)

	case OpDelete:
		return r.handlers.Delete(ctx, route.ChannelID, identity, decodeDeleteRequest(body))

	default:
		return NewError(ErrCodeInvalidArgument, "unknown operation")
	}
}

// decodeDeleteRequest accepts either {"chatId":"..."} or the bare id,
// optionally JSON-quoted.
func decodeDeleteRequest(body []byte) model.DeleteRequest {
	trimmed := bytes.TrimSpace(body)

	var req model.DeleteRequest
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &req); err == nil {
			return req
		}
		return model.DeleteRequest{}
	}

	var quoted string
	if err := json.Unmarshal(trimmed, &quoted); err == nil {
		return model.DeleteRequest{ChatID: quoted}
	}
	return model.DeleteRequest{ChatID: string(trimmed)}
}
