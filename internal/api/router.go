package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/cache"
	"github.com/reddwatch/reddwatch/internal/db"
	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
)

// Router sets up API routes
type Router struct {
	db         *db.DB
	cache      *cache.Cache
	stories    *db.StoryRepository
	boards     *db.CommunityRepository
	seenWindow time.Duration
	logger     *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(database *db.DB, redisCache *cache.Cache, cfg *config.TasksConfig) *Router {
	repo := db.NewRepository(database.DB)
	return &Router{
		db:         database,
		cache:      redisCache,
		stories:    db.NewStoryRepository(repo),
		boards:     db.NewCommunityRepository(repo),
		seenWindow: cfg.CommunitySeenWindow,
		logger:     logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	api := engine.Group("/api")
	api.GET("/stories", r.hottestStories)
	api.GET("/stories/:id", r.storyByID)
	api.GET("/communities", r.activeCommunities)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	if err := r.db.Health(c.Request.Context()); err != nil {
		c.JSON(503, gin.H{
			"status":  "UNAVAILABLE",
			"service": "reddwatch-api",
		})
		return
	}
	c.JSON(200, gin.H{
		"status":  "OK",
		"service": "reddwatch-api",
	})
}
