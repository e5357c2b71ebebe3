package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/leafsync/server/internal/observability"
	"github.com/leafsync/server/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same permissive policy as the REST surface
		return true
	},
}

// WebSocketHandler upgrades connections onto the events hub
type WebSocketHandler struct {
	hub *services.EventsHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.EventsHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Connect upgrades the request and streams sync lifecycle events
// @Summary Event stream
// @Description WebSocket stream of scan cache and sync events
// @Tags events
// @Router /ws [get]
func (h *WebSocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Errorf("websocket upgrade: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
