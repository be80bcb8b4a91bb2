package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/aiproxy/internal/pool"
	"github.com/relaymesh/aiproxy/internal/store"
)

// healthHandler mirrors the teacher's HealthHandler
// (internal/server/handlers/health.go), shrunk from a full per-account
// status dump (the teacher manages a handful of operator-owned accounts)
// to a pool-level summary appropriate for a multi-tenant deployment where
// individual credentials are not the caller's business.
type healthHandler struct {
	db    *store.Store
	pools *pool.Engine
}

func newHealthHandler(db *store.Store, pools *pool.Engine) *healthHandler {
	return &healthHandler{db: db, pools: pools}
}

func (h *healthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
