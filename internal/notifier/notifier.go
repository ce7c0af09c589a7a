package notifier

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bailacheck/internal/dto"
)

const defaultBody = "New dance event nearby!"

// Notification is the payload pushed to connected clients. Actions let the
// client route a tap: "explore" opens the events listing, "close" dismisses.
type Notification struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Icon    string         `json:"icon"`
	Data    map[string]any `json:"data"`
	Actions []Action       `json:"actions"`
}

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// ClickPath maps a notification action id to the in-app path a client
// should open. An unknown or absent action opens the app root; "close"
// dismisses without navigation and returns an empty path.
func ClickPath(action string) (path string, open bool) {
	switch action {
	case "explore":
		return "/events", true
	case "close":
		return "", false
	default:
		return "/", true
	}
}

// Build fills a notification with defaults and overlays whatever the
// message carries.
func Build(msg *dto.NotificationMessage) Notification {
	n := Notification{
		Title: "BailaCheck",
		Body:  defaultBody,
		Icon:  "/icons/icon-192x192.png",
		Data:  map[string]any{"kind": msg.Kind},
		Actions: []Action{
			{Action: "explore", Title: "Explore Events"},
			{Action: "close", Title: "Close"},
		},
	}
	if msg.Body != "" {
		n.Body = msg.Body
	}
	for k, v := range msg.Data {
		n.Data[k] = v
	}
	return n
}

// Hub tracks one WebSocket connection per user and pushes notifications to
// whichever users are currently connected. Users without a connection just
// miss the push; the data itself is re-fetched through the sync layer.
type Hub struct {
	log      *zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

func NewHub(log *zerolog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
	}
}

// Subscribe upgrades the request and keeps the connection open until the
// peer goes away. Blocks for the lifetime of the connection.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if old, ok := h.conns[userID]; ok {
		_ = old.Close()
	}
	h.conns[userID] = conn
	h.mu.Unlock()

	h.log.Info().Str("user_id", userID).Msg("push subscriber connected")

	defer func() {
		h.mu.Lock()
		if h.conns[userID] == conn {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		_ = conn.Close()
		h.log.Info().Str("user_id", userID).Msg("push subscriber disconnected")
	}()

	// Drain control frames; clients do not send application messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Push delivers a notification to one user. Returns false when the user has
// no live connection.
func (h *Hub) Push(userID string, n Notification) bool {
	h.mu.RLock()
	conn, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	if err := conn.WriteJSON(n); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to push notification")
		h.mu.Lock()
		if h.conns[userID] == conn {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		_ = conn.Close()
		return false
	}
	return true
}
