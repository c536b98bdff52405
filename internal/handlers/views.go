package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-listing-api/internal/fetchers"
	"marketplace-listing-api/internal/models"
	"marketplace-listing-api/internal/session"
)

var errInvalidParameter = errors.New("invalid parameter")

type bulkRequest struct {
	Action string   `json:"action" binding:"required"`
	IDs    []string `json:"ids"`
}

func (s *Server) listViews(c *gin.Context) {
	views := make([]gin.H, 0, len(s.order))
	for _, name := range s.order {
		items, categories, priceRange := s.views[name].Snapshot()
		views = append(views, gin.H{
			"name":        name,
			"mounted":     s.views[name].Mounted(),
			"total":       len(items),
			"categories":  categories,
			"price_range": priceRange,
		})
	}
	c.JSON(http.StatusOK, gin.H{"views": views})
}

func (s *Server) getView(c *gin.Context) {
	startTime := time.Now()
	view, ok := s.view(c)
	if !ok {
		return
	}

	items, categories, _ := view.Snapshot()
	state, window, warnings, err := parseViewQuery(c, items, categories)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameters", err.Error(), "")
		return
	}

	page := view.Query(state, window)
	if loginRequired(page.Err) {
		abortWithError(c, http.StatusUnauthorized, "login_required", "login required", page.Err.Error())
		return
	}

	resp := models.ViewResponse{
		View:       view.Name(),
		Items:      page.Items,
		Total:      page.Total,
		Page:       page.PageIndex + 1,
		Limit:      page.PageSize,
		TotalPages: page.TotalPages,
		Filters:    page.Filters,
		Categories: page.Categories,
		PriceRange: page.PriceRange,
		Loading:    page.Loading,
		Error:      fetchers.UserMessage(page.Err),
		Warnings:   warnings,
		Duration:   time.Since(startTime).String(),
	}
	if !page.LoadedAt.IsZero() {
		loadedAt := page.LoadedAt
		resp.LoadedAt = &loadedAt
	}

	c.JSON(http.StatusOK, resp)
}

// parseViewQuery builds a filter state and page window from the query string.
// Filters go through the FilterState setters, so inverted price bounds are
// swapped and an unknown sort key keeps the default order with a warning.
func parseViewQuery(c *gin.Context, items []models.Item, categories []string) (models.FilterState, models.PageWindow, []string, error) {
	state := models.NewFilterState(items)
	window := models.PageWindow{PageSize: models.DefaultPageSize}
	var warnings []string

	known := make(map[string]bool, len(categories))
	for _, name := range categories {
		known[name] = true
	}
	for _, raw := range c.QueryArray("category") {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" || state.HasCategory(name) {
				continue
			}
			if !known[name] {
				return state, window, nil, fmt.Errorf("%w: unknown category %q", errInvalidParameter, name)
			}
			state.ToggleCategory(name)
		}
	}

	minStr, maxStr := c.Query("min_price"), c.Query("max_price")
	if minStr != "" || maxStr != "" {
		// A missing bound is open, not the observed one, so a single bound
		// outside the collection range never gets swapped.
		lo, hi := 0.0, math.MaxFloat64
		var err error
		if minStr != "" {
			if lo, err = parsePrice("min_price", minStr); err != nil {
				return state, window, nil, err
			}
		}
		if maxStr != "" {
			if hi, err = parsePrice("max_price", maxStr); err != nil {
				return state, window, nil, err
			}
		}
		if state.SetPriceRange(lo, hi) {
			warnings = append(warnings, fmt.Sprintf("price range swapped to [%g, %g]", state.MinPrice, state.MaxPrice))
		}
	}

	if sortKey := c.Query("sort"); sortKey != "" {
		if err := state.SetSort(sortKey); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	state.SetSearchText(c.Query("q"))

	if p := c.Query("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			return state, window, nil, fmt.Errorf("%w: page must be a positive integer", errInvalidParameter)
		}
		window.PageIndex = page - 1
	}
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			return state, window, nil, fmt.Errorf("%w: limit must be a positive integer", errInvalidParameter)
		}
		if limit > models.MaxPageSize {
			limit = models.MaxPageSize
		}
		window.PageSize = limit
	}

	return state, window, warnings, nil
}

func parsePrice(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a non-negative number", errInvalidParameter, name)
	}
	return v, nil
}

func (s *Server) refreshView(c *gin.Context) {
	view, ok := s.view(c)
	if !ok {
		return
	}

	err := view.Refresh(c.Request.Context())
	if errors.Is(err, fetchers.ErrFetchInFlight) {
		c.JSON(http.StatusAccepted, gin.H{
			"view":    view.Name(),
			"message": "refresh already in progress",
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	items, _, _ := view.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"view":      view.Name(),
		"total":     len(items),
		"message":   "view refreshed",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) itemAction(c *gin.Context) {
	view, ok := s.view(c)
	if !ok {
		return
	}

	action, err := fetchers.ParseAction(c.Param("action"))
	if err != nil {
		respondError(c, err)
		return
	}

	var payload map[string]any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
			abortWithError(c, http.StatusBadRequest, "invalid_payload", "payload must be a JSON object", err.Error())
			return
		}
	}

	id := c.Param("id")
	if err := view.Dispatch(c.Request.Context(), fetchers.Mutation{ID: id, Action: action, Payload: payload}); err != nil {
		respondError(c, err)
		return
	}

	s.respondMutated(c, view, gin.H{"id": id, "action": action})
}

func (s *Server) bulkAction(c *gin.Context) {
	view, ok := s.view(c)
	if !ok {
		return
	}

	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_payload", "expected {action, ids}", err.Error())
		return
	}

	action, err := fetchers.ParseAction(req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := view.DispatchBulk(c.Request.Context(), action, req.IDs); err != nil {
		respondError(c, err)
		return
	}

	s.respondMutated(c, view, gin.H{"ids": req.IDs, "action": action})
}

func (s *Server) respondMutated(c *gin.Context, view *session.View, body gin.H) {
	items, _, _ := view.Snapshot()
	body["view"] = view.Name()
	body["total"] = len(items)
	body["message"] = "action applied"
	c.JSON(http.StatusOK, body)
}
