package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

const requestTypeGetMessages = "get_messages"

// maxRequestBody bounds the fallback request body.
const maxRequestBody = 1 << 16

type fallbackRequest struct {
	Type string `json:"type"`
}

// MessagesResponse is the HTTP fallback view of the room.
type MessagesResponse struct {
	Messages       []domain.ChatMessage `json:"messages"`
	ConnectedUsers int                  `json:"connectedUsers"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
	Messages    int    `json:"messages"`
}

// HTTPHandler serves the request/response fallback and health checks.
type HTTPHandler struct {
	hub     *hub.Hub
	service service.ChatService
}

func NewHTTPHandler(h *hub.Hub, svc service.ChatService) *HTTPHandler {
	return &HTTPHandler{hub: h, service: svc}
}

// PostMessages answers {"type":"get_messages"}.
func (h *HTTPHandler) PostMessages(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(r.Context())

	var req fallbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		l.Debug().Err(err).Msg("invalid fallback request")
		response.BadRequest(w, "Invalid request")
		return
	}

	if req.Type != requestTypeGetMessages {
		response.BadRequest(w, "Unknown message type")
		return
	}

	response.OK(w, h.snapshot())
}

// GetMessages is the read-only form of PostMessages.
func (h *HTTPHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.snapshot())
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:      "ok",
		Connections: h.hub.ClientCount(),
		Sessions:    len(h.service.ConnectedUsers()),
		Messages:    len(h.service.Messages()),
	})
}

func (h *HTTPHandler) snapshot() MessagesResponse {
	return MessagesResponse{
		Messages:       h.service.Messages(),
		ConnectedUsers: len(h.service.ConnectedUsers()),
	}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/messages", h.PostMessages).Methods(http.MethodPost)
	api.HandleFunc("/messages", h.GetMessages).Methods(http.MethodGet)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}
