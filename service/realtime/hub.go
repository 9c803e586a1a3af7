package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/threadit/threadit-server/cmd/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	UserID uint
	Conn   *websocket.Conn
	mu     sync.Mutex
}

// Hub tracks which users currently hold an open websocket. Events are
// delivered best-effort; an offline user simply misses the push and
// reads the record from the REST API later.
type Hub struct {
	clients map[uint]*Client
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uint]*Client),
	}
}

func (h *Hub) registerClient(userID uint, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[userID]; ok {
		old.Conn.Close()
	}
	client := &Client{UserID: userID, Conn: conn}
	h.clients[userID] = client
	return client
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
	}
}

// Push sends an event to the user's open connection, if any. Returns
// whether the event was written.
func (h *Hub) Push(userID uint, eventType string, payload interface{}) bool {
	h.mu.RLock()
	client, exists := h.clients[userID]
	h.mu.RUnlock()
	if !exists {
		return false
	}

	message, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return false
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("WebSocket write to user %d failed: %v", userID, err)
		return false
	}
	return true
}

func (h *Hub) readLoop(client *Client) {
	defer func() {
		h.unregisterClient(client)
		client.Conn.Close()
	}()

	// Clients only receive events; inbound frames are drained to detect
	// the close handshake.
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", utils.AuthMiddleware(h.HandleWebSocket))
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := h.registerClient(userID, conn)
	go h.readLoop(client)
}
