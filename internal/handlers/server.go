// Package handlers exposes the mounted listing views over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-listing-api/internal/session"
	"marketplace-listing-api/pkg/cache"
)

const (
	serviceName    = "marketplace-listing-api"
	serviceVersion = "1.0.0"
)

// CredentialManager is the login handoff surface of the credential store.
type CredentialManager interface {
	Token(ctx context.Context) (string, error)
	Set(token string)
	Clear()
}

type Server struct {
	views   map[string]*session.View
	order   []string
	creds   CredentialManager
	cache   *cache.RedisCache
	limiter *RateLimiter
}

// NewServer serves views in the given order. redisCache may be nil.
func NewServer(views []*session.View, creds CredentialManager, redisCache *cache.RedisCache, limiter *RateLimiter) *Server {
	s := &Server{
		views:   make(map[string]*session.View, len(views)),
		creds:   creds,
		cache:   redisCache,
		limiter: limiter,
	}
	for _, v := range views {
		s.views[v.Name()] = v
		s.order = append(s.order, v.Name())
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())
	if s.limiter != nil {
		r.Use(s.limiter.Middleware())
		r.GET("/rate-limit/status", s.limiter.status)
	}

	r.GET("/health", s.health)
	r.GET("/api/info", s.info)

	r.GET("/cache/stats", s.cacheStats)
	r.GET("/cache/debug", s.cacheDebug)
	r.DELETE("/cache/flush", s.cacheFlush)

	api := r.Group("/api")
	api.POST("/session", s.login)
	api.DELETE("/session", s.logout)

	api.GET("/views", s.listViews)
	api.GET("/views/:view", s.getView)
	api.POST("/views/:view/refresh", s.refreshView)
	api.POST("/views/:view/items/:id/:action", s.itemAction)
	api.POST("/views/:view/manage", s.bulkAction)

	return r
}

func (s *Server) health(c *gin.Context) {
	health := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	}

	if s.cache.IsAvailable() {
		health["cache"] = "redis connected"
	} else {
		health["cache"] = "redis unavailable"
	}

	views := gin.H{}
	for _, name := range s.order {
		views[name] = s.views[name].Mounted()
	}
	health["views"] = views

	c.JSON(http.StatusOK, health)
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Marketplace Listing API",
		"version":     serviceVersion,
		"description": "Filtered, sorted and paginated admin listings over the marketplace backend",
		"features":    []string{"Category filter", "Price range", "Free-text search", "Sorting", "Pagination", "Row actions", "Redis snapshot cache"},
		"views":       s.order,
		"endpoints": map[string]string{
			"GET /api/views":                          "List mounted views",
			"GET /api/views/:view":                    "Filtered page of a view",
			"POST /api/views/:view/refresh":           "Reload a view from the backend",
			"POST /api/views/:view/items/:id/:action": "approve, reject, delete or updateStatus one item",
			"POST /api/views/:view/manage":            "Bulk action on several items",
			"POST /api/session":                       "Store the operator token",
			"DELETE /api/session":                     "Forget the operator token",
			"GET /health":                             "Health check",
			"GET /cache/stats":                        "Cache statistics",
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) view(c *gin.Context) (*session.View, bool) {
	name := c.Param("view")
	v, ok := s.views[name]
	if !ok {
		abortWithError(c, http.StatusNotFound, "view_not_found", "unknown view "+name, "")
		return nil, false
	}
	return v, true
}
