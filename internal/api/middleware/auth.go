package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/GriffinCanCode/sitepack/internal/domain/auth"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SessionKey is the gin context key holding the caller's *auth.Session
const SessionKey = "session"

// TokenVerifier resolves bearer tokens to sessions
type TokenVerifier interface {
	Verify(token string) (*auth.Session, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Browsers cannot set headers on WebSocket handshakes, so upgrade
// requests may pass it as the access_token query parameter instead.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		return c.Query("access_token")
	}
	return ""
}

// RequireSession rejects requests without a live session with 401.
func RequireSession(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", `Bearer realm="sitepack"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}

		session, err := verifier.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpired) {
				msg = "session expired"
			}
			c.Header("WWW-Authenticate", `Bearer realm="sitepack", error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
			return
		}

		c.Set(SessionKey, session)
		c.Next()
	}
}
