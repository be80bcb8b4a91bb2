// Package router is the Request Router (spec.md §2 Component G): the gin
// engine assembly, client-auth middleware, access-control gating, model
// dispatch decisions, and the full client-facing HTTP surface.
//
// Grounded on the teacher's internal/server/{server,middleware}.go and
// go-backend/internal/server/server.go's route table.
package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/aiproxy/internal/apierr"
	"github.com/relaymesh/aiproxy/internal/logging"
	"github.com/relaymesh/aiproxy/internal/store"
	"go.uber.org/zap"
)

// ctxUserKey / ctxAPIKeyKey are gin-context keys set by APIKeyAuth and
// read by handlers; unexported so only this package can set them.
const (
	ctxUserKey   = "aiproxy.user"
	ctxAPIKeyKey = "aiproxy.apiKey"
)

// CORS mirrors the teacher's CORSMiddleware (internal/server/middleware.go):
// permissive CORS, since every client of this proxy is a developer tool
// running locally or in CI, not a browser page that needs origin scoping.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, anthropic-version, anthropic-beta")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogging logs each request's method/path/status/latency at a
// level chosen by the response status, the same triage the teacher's
// RequestLoggingMiddleware applies (internal/server/middleware.go), now
// through zap instead of the hand-rolled ANSI logger.
func RequestLogging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// RequestContext injects a per-request logger (with a generated request
// ID) into context.Context, so downstream code can call
// logging.FromContext instead of threading a logger through every
// function signature.
func RequestContext(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = genRequestID()
		}
		ctx := logging.WithRequest(c.Request.Context(), base, requestID, "")
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// APIKeyAuth extracts a caller's API key from the Authorization/X-API-Key
// headers, looks up the owning user, and rejects inactive keys/users.
// Grounded on the teacher's APIKeyAuthMiddleware (bearer/X-API-Key
// extraction), extended with the store lookup the teacher's single-key
// deployment never needed.
func APIKeyAuth(db *store.Store, hashKey func(string) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractAPIKey(c.Request)
		if raw == "" {
			respondError(c, apierr.Authentication("missing API key"))
			return
		}

		key, err := db.GetAPIKeyByHash(c.Request.Context(), hashKey(raw))
		if err == store.ErrNotFound {
			respondError(c, apierr.Authentication("invalid API key"))
			return
		}
		if err != nil {
			respondError(c, apierr.Server("auth lookup failed: %v", err))
			return
		}
		if !key.Active {
			respondError(c, apierr.Authentication("API key revoked"))
			return
		}

		user, err := db.GetUserByID(c.Request.Context(), key.UserID)
		if err != nil || !user.Active {
			respondError(c, apierr.Authentication("account disabled"))
			return
		}

		_ = db.TouchAPIKey(c.Request.Context(), key.ID)

		if base := logging.FromContext(c.Request.Context(), nil); base != nil {
			ctx := logging.WithRequest(c.Request.Context(), base.With(zap.String("user_id", user.ID)), "", "")
			c.Request = c.Request.WithContext(ctx)
		}
		c.Set(ctxUserKey, user)
		c.Set(ctxAPIKeyKey, key)
		c.Next()
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if key := r.Header.Get("x-goog-api-key"); key != "" {
		return key
	}
	return ""
}

func userFromContext(c *gin.Context) *store.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	return v.(*store.User)
}

func apiKeyFromContext(c *gin.Context) *store.APIKey {
	v, ok := c.Get(ctxAPIKeyKey)
	if !ok {
		return nil
	}
	return v.(*store.APIKey)
}

// bypassesQuota reports whether the caller's admin role or the presented
// API key's ADMIN type exempts this request from every quota/rate/access
// check (spec.md §3.1 "administrator tier bypasses all quota/rate checks",
// §3.2 "An ADMIN key inherits the bypass").
func bypassesQuota(user *store.User, key *store.APIKey) bool {
	return user.Role == "admin" || (key != nil && key.Type == store.APIKeyTypeAdmin)
}

func genRequestID() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

func respondError(c *gin.Context, err *apierr.Error) {
	c.AbortWithStatusJSON(err.HTTPStatus, map[string]interface{}{
		"error": map[string]interface{}{"type": string(err.Kind), "message": err.Message},
	})
}
