package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

const (
	headerSessionToken   = "X-Session-Token"
	headerIdempotencyKey = "Idempotency-Key"
)

type ctxKey string

const (
	identityCtxKey ctxKey = "identity"
	tokenCtxKey    ctxKey = "accessToken"
	sessionCtxKey  ctxKey = "sessionID"
)

type verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

type sessionLookup interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// identityMiddleware resolves a bearer token when present. A request
// carrying a bad token is rejected rather than downgraded to a guest.
func identityMiddleware(auth verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		id, err := auth.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		ctx := context.WithValue(c.Request.Context(), identityCtxKey, id)
		ctx = context.WithValue(ctx, tokenCtxKey, token)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func sessionMiddleware(sessions sessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(headerSessionToken))
		if token == "" {
			c.Next()
			return
		}
		sessionID, err := sessions.Lookup(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), sessionCtxKey, sessionID))
		c.Next()
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identityFrom(c); !ok {
			abortWithStatus(c, http.StatusUnauthorized, "unauthorized", "Authentication required.")
			return
		}
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			abortWithStatus(c, http.StatusUnauthorized, "unauthorized", "Authentication required.")
			return
		}
		if !id.IsAdmin {
			abortWithStatus(c, http.StatusForbidden, "forbidden", "Admin access required.")
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func identityFrom(c *gin.Context) (domain.Identity, bool) {
	id, ok := c.Request.Context().Value(identityCtxKey).(domain.Identity)
	return id, ok
}

func accessTokenFrom(c *gin.Context) string {
	token, _ := c.Request.Context().Value(tokenCtxKey).(string)
	return token
}

func sessionFrom(c *gin.Context) (string, bool) {
	id, ok := c.Request.Context().Value(sessionCtxKey).(string)
	return id, ok && id != ""
}

// cartRef picks the account cart for authenticated callers and the session
// cart otherwise. Callers with neither get a 401.
func cartRef(c *gin.Context) (domain.CartRef, bool) {
	if id, ok := identityFrom(c); ok {
		return domain.AccountCart(id.UserID), true
	}
	if sessionID, ok := sessionFrom(c); ok {
		return domain.AnonymousCart(sessionID), true
	}
	abortWithStatus(c, http.StatusUnauthorized, "session_required", "Send a bearer token or "+headerSessionToken+".")
	return domain.CartRef{}, false
}
