package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/models"
)

// EventsHandler serves the push-channel WebSocket endpoint. Clients connect
// and optionally send a {subscribe:[...]} frame to narrow the event kinds
// they receive; an empty or absent filter receives everything.
type EventsHandler struct {
	app      *App
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(app *App) *EventsHandler {
	return &EventsHandler{
		app: app,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Mount registers the /api/v1/events route on router directly, bypassing
// huma: a long-lived bidirectional WebSocket doesn't fit huma's
// request/response operation model.
func (h *EventsHandler) Mount(router chi.Router) {
	router.Get("/api/v1/events", h.ServeWS)
}

// subscribeFrame is the optional client-sent filter frame.
type subscribeFrame struct {
	Subscribe []models.EventKind `json:"subscribe"`
}

// ServeWS upgrades the connection and streams bus events until the client
// disconnects.
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.app.Logger.Warn("events: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	filter := events.Filter(nil)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame subscribeFrame
	if err := conn.ReadJSON(&frame); err == nil && len(frame.Subscribe) > 0 {
		filter = make(events.Filter, len(frame.Subscribe))
		for _, k := range frame.Subscribe {
			filter[k] = true
		}
	}

	sub := h.app.Bus.Subscribe(filter)
	defer sub.Unsubscribe()

	go h.drainClient(conn)

	for evt := range sub.C {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drainClient discards inbound client frames after the initial subscribe,
// which keeps the read side alive so close/ping control frames are
// processed and the connection's death is detected promptly.
func (h *EventsHandler) drainClient(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
