package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/themobileprof/lambdachat/internal/session"
)

// SessionCookie is the name of the cookie carrying the signed session token
const SessionCookie = "lambdachat_session"

const sessionIDKey = "session_id"

// SessionClaims is the session token payload; Subject holds the session ID
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionSource creates and looks up conversations
type SessionSource interface {
	StartSession(ctx context.Context) (*session.Session, error)
	History(ctx context.Context, id string) (*session.Session, error)
}

// Sessions binds browser requests to conversations through a signed cookie
type Sessions struct {
	secret []byte
	ttl    time.Duration
	source SessionSource
}

// NewSessions creates the session cookie manager. An empty secret is replaced
// by a random one, so cookies do not survive a restart.
func NewSessions(secret string, ttl time.Duration, source SessionSource) *Sessions {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			log.Fatalf("Failed to generate session secret: %v", err)
		}
		log.Printf("Warning: SESSION_SECRET not set, using a random key")
	}
	return &Sessions{secret: key, ttl: ttl, source: source}
}

// Middleware resolves the caller's session, starting a new one when the
// cookie is missing, invalid or points at an expired conversation
func (s *Sessions) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := s.fromCookie(c); ok {
			c.Set(sessionIDKey, claims.Subject)
			if s.needsRefresh(claims) {
				if err := s.Issue(c, claims.Subject); err != nil {
					log.Printf("Failed to refresh session cookie: %v", err)
				}
			}
			c.Next()
			return
		}

		sess, err := s.source.StartSession(c.Request.Context())
		if err != nil {
			log.Printf("Failed to start session: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
			return
		}
		if err := s.Issue(c, sess.ID); err != nil {
			log.Printf("Failed to issue session cookie: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
			return
		}

		c.Next()
	}
}

// Issue signs a token for id, sets the cookie and binds id to the request
func (s *Sessions) Issue(c *gin.Context, id string) error {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	maxAge := 0
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
		maxAge = int(s.ttl.Seconds())
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, signed, maxAge, "/", "", c.Request.TLS != nil, true)
	c.Set(sessionIDKey, id)
	return nil
}

func (s *Sessions) fromCookie(c *gin.Context) (*SessionClaims, bool) {
	raw, err := c.Cookie(SessionCookie)
	if err != nil || raw == "" {
		return nil, false
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, false
	}

	if _, err := s.source.History(c.Request.Context(), claims.Subject); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("Failed to load session %s: %v", claims.Subject, err)
		}
		return nil, false
	}
	return claims, true
}

// needsRefresh reports whether less than half the cookie lifetime remains
func (s *Sessions) needsRefresh(claims *SessionClaims) bool {
	if s.ttl <= 0 || claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) < s.ttl/2
}

// SessionID returns the session bound to the request by Middleware
func SessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
