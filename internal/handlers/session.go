package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-listing-api/internal/fetchers"
)

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

// login stores the operator token and reloads every view with it.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_payload", "expected {token}", err.Error())
		return
	}

	s.creds.Set(req.Token)
	if _, err := s.creds.Token(c.Request.Context()); err != nil {
		s.creds.Clear()
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "session started",
		"views":   s.reload(c.Request.Context()),
	})
}

// logout forgets the token. Views are remounted so no data fetched with it
// stays visible.
func (s *Server) logout(c *gin.Context) {
	s.creds.Clear()
	for _, name := range s.order {
		s.views[name].Unmount()
	}
	s.reload(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

// reload remounts unmounted views and refreshes mounted ones. It reports the
// outcome per view.
func (s *Server) reload(ctx context.Context) gin.H {
	results := gin.H{}
	for _, name := range s.order {
		v := s.views[name]

		var err error
		if v.Mounted() {
			err = v.Refresh(ctx)
		} else {
			err = v.Mount(ctx)
		}

		switch {
		case err == nil:
			results[name] = "loaded"
		case errors.Is(err, fetchers.ErrFetchInFlight):
			results[name] = "loading"
		default:
			log.Printf("View %s reload failed: %v", name, err)
			results[name] = fetchers.UserMessage(err)
		}
	}
	return results
}
