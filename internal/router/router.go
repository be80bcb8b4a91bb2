package router

import (
	"github.com/gin-gonic/gin"
	"github.com/relaymesh/aiproxy/internal/config"
	"github.com/relaymesh/aiproxy/internal/pool"
	"github.com/relaymesh/aiproxy/internal/quota"
	"github.com/relaymesh/aiproxy/internal/store"
	"github.com/relaymesh/aiproxy/internal/upstream"
	"go.uber.org/zap"
)

// Router owns the gin engine and every component handlers depend on.
// One Router per process, built once at boot by cmd/server and never
// reconstructed per-request, per the Design Notes (spec.md §9).
type Router struct {
	engine *gin.Engine

	cfg        *config.Config
	db         *store.Store
	pools      *pool.Engine
	governor   *quota.Governor
	dispatcher *upstream.Dispatcher
	log        *zap.Logger
}

func New(cfg *config.Config, db *store.Store, pools *pool.Engine, governor *quota.Governor, dispatcher *upstream.Dispatcher, log *zap.Logger) *Router {
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	r := &Router{
		engine:     engine,
		cfg:        cfg,
		db:         db,
		pools:      pools,
		governor:   governor,
		dispatcher: dispatcher,
		log:        log,
	}
	r.setupRoutes()
	return r
}

func (r *Router) Engine() *gin.Engine { return r.engine }

// setupRoutes mirrors the teacher's go-backend/internal/server/server.go
// SetupRoutes table: a public health route, then an authenticated /v1
// group for the model list and the completion endpoints, with the addition of an
// admin group for the supplemented read-only visibility endpoints.
func (r *Router) setupRoutes() {
	r.engine.Use(CORS(), RequestContext(r.log), RequestLogging(r.log))

	health := newHealthHandler(r.db, r.pools)
	r.engine.GET("/health", health.Health)

	models := newModelsHandler()
	messages := newMessagesHandler(r.db, r.pools, r.governor, r.dispatcher, r.cfg)

	v1 := r.engine.Group("/v1")
	v1.Use(APIKeyAuth(r.db, hashAPIKey))
	{
		v1.GET("/models", models.List)

		v1.POST("/messages", messages.Create)
		v1.POST("/messages/count_tokens", messages.CountTokens)
		v1.POST("/chat/completions", messages.Create)
		// Gemini's native non-stream/stream endpoints are one path segment
		// with an embedded colon (e.g. "gemini-2.5-flash:streamGenerateContent"),
		// not two segments -- register the single :action wildcard and split
		// on ":" inside the handler (spec.md §6, §8 scenario 2).
		v1.POST("/models/:action", messages.Create)
	}

	v1beta := r.engine.Group("/v1beta")
	v1beta.Use(APIKeyAuth(r.db, hashAPIKey))
	{
		v1beta.GET("/models", models.List)
	}

	// googleai exposes the same listing/dispatch surface under the Cloud
	// Code native path prefix (spec.md §6).
	googleai := r.engine.Group("/googleai")
	googleai.Use(APIKeyAuth(r.db, hashAPIKey))
	{
		googleai.GET("/models", models.List)
		googleai.POST("/models/:action", messages.Create)
	}

	admin := r.engine.Group("/admin")
	admin.Use(APIKeyAuth(r.db, hashAPIKey), RequireAdmin())
	{
		a := newAdminHandler(r.db)
		admin.GET("/users/:id/usage", a.UserUsage)
		admin.GET("/credentials", a.ListCredentials)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		respondError(c, notFoundError())
	})
}
