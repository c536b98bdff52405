package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) cacheStats(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "cache not available",
		})
		return
	}

	c.JSON(http.StatusOK, s.cache.GetStats(c.Request.Context()))
}

func (s *Server) cacheDebug(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "cache not available",
		})
		return
	}

	ctx := c.Request.Context()
	keys := s.cache.GetAllKeys(ctx)

	keyDetails := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		ttl := s.cache.GetKeyTTL(ctx, key)
		keyDetails = append(keyDetails, gin.H{
			"key":         key,
			"ttl_seconds": int(ttl.Seconds()),
			"expires_in":  ttl.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_keys":  len(keys),
		"cache_keys":  keyDetails,
		"cache_stats": s.cache.GetStats(ctx),
		"debug_info": gin.H{
			"redis_available": s.cache.IsAvailable(),
			"timestamp":       time.Now().Format(time.RFC3339),
		},
	})
}

// cacheFlush drops every cached collection snapshot. Mounted views keep their
// data until the next refresh.
func (s *Server) cacheFlush(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "cache not available",
		})
		return
	}

	if err := s.cache.FlushCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to flush cache",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "cache flushed successfully",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
