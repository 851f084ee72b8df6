package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/paddle-club/backend/internal/models"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP middleware; sockets only read public state
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	final bool // close the socket after this message
}

// Client is a single WebSocket connection following one subscription.
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		ID:     uuid.New().String(),
		conn:   conn,
		send:   make(chan WSMessage, sendBuffer),
		logger: logger,
	}
}

// push queues msg without blocking; a full buffer drops it.
func (c *Client) push(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("websocket buffer full, dropping message", zap.String("client_id", c.ID), zap.String("event", msg.Event))
	}
}

// ServeRegistration streams status changes of one registration and closes the
// socket once a terminal status was sent.
func ServeRegistration(ch *Channel, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid registration id"})
			return
		}
		if _, err := ch.regs.GetByID(c.Request.Context(), id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "registration not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load registration"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := newClient(conn, logger)
		sub, err := ch.WatchRegistration(c.Request.Context(), id, func(change models.StatusChange) {
			data, _ := json.Marshal(change)
			client.push(WSMessage{Event: EventRegistrationStatus, Data: data, final: change.AttendanceStatus.Terminal()})
		})
		if err != nil {
			logger.Error("watch registration failed", zap.Error(err), zap.String("registration_id", id.String()))
			closeUnavailable(conn)
			return
		}
		go client.writePump()
		client.readPump()
		sub.Cancel()
	}
}

// ServeAttendance streams the event id -> {count, emails} mapping.
func ServeAttendance(ch *Channel, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := newClient(conn, logger)
		sub, err := ch.WatchAttendance(c.Request.Context(), func(counts map[string]models.AttendanceSummary) {
			data, _ := json.Marshal(counts)
			client.push(WSMessage{Event: EventAttendanceChanged, Data: data})
		})
		if err != nil {
			logger.Error("watch attendance failed", zap.Error(err))
			closeUnavailable(conn)
			return
		}
		go client.writePump()
		client.readPump()
		sub.Cancel()
	}
}

// closeUnavailable ends a socket whose subscription could not be started.
func closeUnavailable(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "status channel unavailable")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// readPump drains the connection until the peer goes away. Clients do not send commands.
func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
			if msg.final {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminal status"))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
