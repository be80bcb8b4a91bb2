package router

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/aiproxy/internal/apierr"
)

// hashAPIKey derives the stored lookup hash for a presented API key.
// Plain SHA-256 (not bcrypt) is intentional here: API keys are
// high-entropy random tokens, not user-chosen passwords, so the threat
// bcrypt defends against (offline dictionary attack on a low-entropy
// secret) doesn't apply, and a fast hash keeps every authenticated
// request from paying bcrypt's deliberate CPU cost.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RequireAdmin gates the admin visibility endpoints to the admin role,
// checked after APIKeyAuth has already populated the user in context.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := userFromContext(c)
		if user == nil || user.Role != "admin" {
			respondError(c, apierr.Permission("admin access required"))
			return
		}
		c.Next()
	}
}

func notFoundError() *apierr.Error {
	return apierr.New(apierr.KindUpstream, http.StatusNotFound, "not found", false, nil)
}
