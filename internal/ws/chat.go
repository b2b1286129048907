package ws

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/themobileprof/lambdachat/internal/api/middleware"
	"github.com/themobileprof/lambdachat/internal/chat"
	"github.com/themobileprof/lambdachat/internal/privacy"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// ChatHandler streams chat replies over websocket connections
type ChatHandler struct {
	engine            *chat.Engine
	upgrader          websocket.Upgrader
	messagesPerMinute int
}

// NewChatHandler creates a new chat handler. Connections are accepted from
// the same host or from one of allowedOrigins.
func NewChatHandler(engine *chat.Engine, messagesPerMinute int, allowedOrigins ...string) *ChatHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &ChatHandler{
		engine:            engine,
		messagesPerMinute: messagesPerMinute,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Content string `json:"content"`
}

// OutgoingMessage represents a message to the client
type OutgoingMessage struct {
	Type    string `json:"type"` // "thinking", "message", "error", "done"
	Content string `json:"content,omitempty"`
}

// HandleChat handles websocket chat connections. It must run after the
// session middleware.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing session"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	log.Printf("WebSocket connected: session=%s", sessionID)

	responder := &wsResponder{conn: conn}
	limiter := middleware.NewWebSocketLimiter(h.messagesPerMinute)
	ctx := c.Request.Context()

	for {
		var msg IncomingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !limiter.Allow() {
			responder.SendError("Rate limit exceeded. Please slow down.")
			responder.SendDone()
			continue
		}

		_, err := h.engine.ProcessMessage(ctx, chat.ProcessRequest{
			SessionID: sessionID,
			Message:   msg.Content,
			Stream:    true,
			Responder: responder,
		})
		if err == nil {
			continue
		}

		log.Printf("Error processing message %q: %v", privacy.SanitizeForLogging(msg.Content), err)
		switch {
		case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrInputDisabled):
			responder.SendError(err.Error())
		default:
			responder.SendError("Something went wrong. Please reload the page.")
		}
		responder.SendDone()
	}

	log.Printf("WebSocket disconnected: session=%s", sessionID)
}

// wsResponder implements chat.Responder over a websocket connection
type wsResponder struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (r *wsResponder) write(msg OutgoingMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(msg)
}

func (r *wsResponder) SendThinking() error {
	return r.write(OutgoingMessage{Type: "thinking"})
}

// SendMessage sends a message chunk to the client
func (r *wsResponder) SendMessage(content string) error {
	return r.write(OutgoingMessage{Type: "message", Content: content})
}

// SendError sends an error message to the client
func (r *wsResponder) SendError(message string) error {
	return r.write(OutgoingMessage{Type: "error", Content: message})
}

// SendDone signals that the response is complete
func (r *wsResponder) SendDone() error {
	return r.write(OutgoingMessage{Type: "done"})
}
