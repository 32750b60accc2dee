package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	// The connection outlives the request; keep its logger, drop its
	// cancellation.
	ctx := log.WithConn(context.WithoutCancel(r.Context()), client.ID())

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(
		func(c *hub.Client, message []byte) {
			h.service.HandleFrame(ctx, c, message)
		},
		func(c *hub.Client) {
			l := log.Ctx(ctx)
			if err := h.service.HandleDisconnect(ctx, c); err != nil {
				l.Warn().Err(err).Msg("disconnect handling failed")
			}
			l.Debug().Dur(log.FieldConnected, time.Since(c.ConnectedAt())).Msg("connection closed")
		},
	)
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}
