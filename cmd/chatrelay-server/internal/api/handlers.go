// Package api provides the admin HTTP handlers of the chat relay server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coregx/chatrelay"
	"github.com/segmentio/encoding/json"
)

// ChannelService is the part of chatrelay.ChannelManager the API exposes.
type ChannelService interface {
	EnsureChannel(ctx context.Context, channelID string) (chatrelay.Channel, error)
	TeardownChannel(ctx context.Context, channelID string) error
	Channel(channelID string) (chatrelay.Channel, bool)
	ActiveChannels() []string
}

// HealthFunc reports extra health details, such as the broker breaker state.
type HealthFunc func() map[string]interface{}

// Handler holds dependencies for API handlers.
type Handler struct {
	channels ChannelService
	health   HealthFunc
	logger   chatrelay.Logger
	version  string
}

// NewHandler creates a new API handler. health may be nil.
func NewHandler(channels ChannelService, health HealthFunc, logger chatrelay.Logger, version string) *Handler {
	return &Handler{
		channels: channels,
		health:   health,
		logger:   logger,
		version:  version,
	}
}

// Register mounts the handlers on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/channels/{id}", h.HandleOpenChannel)
	mux.HandleFunc("DELETE /api/v1/channels/{id}", h.HandleCloseChannel)
	mux.HandleFunc("GET /api/v1/channels", h.HandleListChannels)
	mux.HandleFunc("GET /api/v1/health", h.HandleHealth)
}

// ChannelView is the JSON form of a channel.
type ChannelView struct {
	ID          string    `json:"id"`
	Queue       string    `json:"queue"`
	RoutingKey  string    `json:"routingKey"`
	State       string    `json:"state"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func viewOf(c chatrelay.Channel) ChannelView {
	return ChannelView{
		ID:          c.ID,
		Queue:       c.Queue,
		RoutingKey:  c.RoutingKey,
		State:       c.State.String(),
		ActivatedAt: c.ActivatedAt,
	}
}

// HandleOpenChannel handles POST /api/v1/channels/{id}
func (h *Handler) HandleOpenChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ch, err := h.channels.EnsureChannel(r.Context(), id)
	if err != nil {
		if chatrelay.HasCode(err, chatrelay.ErrCodeInvalidArgument) {
			h.respondError(w, http.StatusBadRequest, "Invalid channel id", "INVALID_ID")
			return
		}
		h.logger.Errorf("Failed to open channel %s: %v", id, err)
		h.respondError(w, http.StatusBadGateway, "Failed to open channel", chatrelay.CodeOf(err))
		return
	}

	h.respondSuccess(w, http.StatusOK, viewOf(ch), "Channel active")
}

// HandleCloseChannel handles DELETE /api/v1/channels/{id}
func (h *Handler) HandleCloseChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid channel id", "INVALID_ID")
		return
	}

	if err := h.channels.TeardownChannel(r.Context(), id); err != nil {
		h.logger.Errorf("Failed to close channel %s: %v", id, err)
		h.respondError(w, http.StatusBadGateway, "Failed to close channel", chatrelay.CodeOf(err))
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Channel closed")
}

// HandleListChannels handles GET /api/v1/channels
func (h *Handler) HandleListChannels(w http.ResponseWriter, _ *http.Request) {
	ids := h.channels.ActiveChannels()
	views := make([]ChannelView, 0, len(ids))
	for _, id := range ids {
		if ch, ok := h.channels.Channel(id); ok {
			views = append(views, viewOf(ch))
		}
	}

	h.respondSuccess(w, http.StatusOK, views, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"channels":  len(h.channels.ActiveChannels()),
	}
	if h.health != nil {
		for k, v := range h.health() {
			health[k] = v
		}
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
