package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/lambdachat/internal/api/middleware"
	"github.com/themobileprof/lambdachat/internal/chat"
	"github.com/themobileprof/lambdachat/internal/session"
	"github.com/themobileprof/lambdachat/pkg/llm"
)

// ConversationHandler serves the REST chat endpoints
type ConversationHandler struct {
	engine   *chat.Engine
	sessions *middleware.Sessions
}

func NewConversationHandler(engine *chat.Engine, sessions *middleware.Sessions) *ConversationHandler {
	return &ConversationHandler{engine: engine, sessions: sessions}
}

func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/session", h.GetSession)
	r.POST("/session/reset", h.ResetSession)
	r.POST("/chat", h.SendMessage)
}

// SessionResponse is the JSON view of a conversation
type SessionResponse struct {
	ID           string        `json:"id"`
	Messages     []llm.Message `json:"messages"`
	InputEnabled bool          `json:"input_enabled"`
}

func toSessionResponse(sess *session.Session) SessionResponse {
	return SessionResponse{ID: sess.ID, Messages: sess.Messages, InputEnabled: sess.InputEnabled}
}

func (h *ConversationHandler) GetSession(c *gin.Context) {
	sess, err := h.engine.History(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *ConversationHandler) ResetSession(c *gin.Context) {
	sess, err := h.engine.ResetSession(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		log.Printf("Failed to reset session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset conversation"})
		return
	}
	if err := h.sessions.Issue(c, sess.ID); err != nil {
		log.Printf("Failed to issue session cookie: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset conversation"})
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// SendMessageRequest is the body of POST /api/chat
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessageResponse carries the assistant reply and the updated history
type SendMessageResponse struct {
	Reply    string        `json:"reply"`
	Fallback bool          `json:"fallback"`
	Messages []llm.Message `json:"messages"`
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is required"})
		return
	}

	id := middleware.SessionID(c)
	reply, err := h.engine.ProcessMessage(c.Request.Context(), chat.ProcessRequest{
		SessionID: id,
		Message:   req.Content,
		Responder: discardResponder{},
	})
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, chat.ErrInputDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": "Please wait for the current reply to finish"})
		return
	case err != nil:
		respondSessionError(c, err)
		return
	}

	sess, err := h.engine.History(c.Request.Context(), id)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, SendMessageResponse{
		Reply:    reply.Content,
		Fallback: reply.Fallback,
		Messages: sess.Messages,
	})
}

func respondSessionError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	log.Printf("Session error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
}

// discardResponder is used where the reply is returned in the HTTP response
type discardResponder struct{}

func (discardResponder) SendThinking() error      { return nil }
func (discardResponder) SendMessage(string) error { return nil }
func (discardResponder) SendError(string) error   { return nil }
func (discardResponder) SendDone() error          { return nil }
