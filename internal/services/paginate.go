package services

import (
	"marketplace-listing-api/internal/models"
)

// Paginate returns the page at pageIndex (0-based) and the total page count.
// totalPages is at least 1, so an empty view still has one (empty) page.
// An index past the last page yields an empty page; callers clamp with
// ClampPage after every recompute.
func Paginate(view []models.Item, pageIndex, pageSize int) ([]models.Item, int) {
	pageSize = normalizePageSize(pageSize)

	total := len(view)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if pageIndex < 0 || pageIndex >= totalPages {
		return []models.Item{}, totalPages
	}
	start := pageIndex * pageSize
	if start >= total {
		return []models.Item{}, totalPages
	}

	end := start + pageSize
	if end > total {
		end = total
	}

	return view[start:end:end], totalPages
}

// ClampPage moves pageIndex into [0, totalPages-1].
func ClampPage(pageIndex, totalPages int) int {
	if pageIndex >= totalPages {
		pageIndex = totalPages - 1
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	return pageIndex
}

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return models.DefaultPageSize
	}
	if pageSize > models.MaxPageSize {
		return models.MaxPageSize
	}
	return pageSize
}
