package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/Cyvadra/tv-autotrade/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var pongMessage = []byte(`{"type":"pong"}`)

// wsListener is one dashboard connection subscribed to alerts
type wsListener struct {
	id   string
	user *models.User
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (l *wsListener) ID() string { return l.id }

func (l *wsListener) Accepts(alert *models.Alert) bool {
	return services.AlertVisibleTo(alert, l.user)
}

func (l *wsListener) Send(msg []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return l.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close ends the connection; the read loop then exits and the client reconnects
func (l *wsListener) Close() error {
	return l.conn.Close()
}

// StreamAlerts upgrades to a websocket and pushes alerts visible to the token's user
func (h *Handler) StreamAlerts(c *gin.Context) {
	userID, err := ParseToken(c.Query("token"), h.secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "invalid or expired token"})
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNKNOWN_USER", "error": "user not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	listener := &wsListener{id: uuid.NewString(), user: user, conn: conn}
	h.hub.Register(listener)
	defer h.hub.Unregister(listener.id)
	h.logger.Printf("Listener %s connected for user %s (%d connected)", listener.id, user.ID, h.hub.Count())

	for {
		kind, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("ws read error: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := listener.Send(pongMessage); err != nil {
			return
		}
	}
}
