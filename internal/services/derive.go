package services

import (
	"sort"
	"strings"

	"marketplace-listing-api/internal/models"
)

// Derive returns the items of raw that satisfy state, in display order.
// Filters run before the sort so the sort is never undone:
// category, then inclusive price range, then free text, then sort.
//
// Derive does not modify raw or state, and equal inputs give equal output.
// SortNewest keeps the input order, which is the backend's newest-first order.
func Derive(raw []models.Item, state models.FilterState) []models.Item {
	filtered := applyFilters(raw, state)
	applySorting(filtered, state.Sort)
	return filtered
}

func applyFilters(items []models.Item, state models.FilterState) []models.Item {
	filtered := make([]models.Item, 0, len(items))
	needle := strings.ToLower(state.SearchText)
	selected := state.SelectedCategories()

	for _, item := range items {
		// Category filter
		if len(selected) > 0 && !state.HasCategory(item.Category) {
			continue
		}

		// Price filter, inclusive on both bounds
		if state.PriceSet && (item.Price < state.MinPrice || item.Price > state.MaxPrice) {
			continue
		}

		// Free-text filter
		if needle != "" && !matchesText(item, needle) {
			continue
		}

		filtered = append(filtered, item)
	}

	return filtered
}

func matchesText(item models.Item, needle string) bool {
	if strings.Contains(strings.ToLower(item.Name), needle) {
		return true
	}
	for _, value := range item.Text {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

func applySorting(items []models.Item, key models.SortKey) {
	switch key {
	case models.SortPriceAsc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Price < items[j].Price
		})
	case models.SortPriceDesc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Price > items[j].Price
		})
	default:
		// newest: backend order
	}
}

// SortByCreatedAt orders items newest first by their timestamp, keeping the
// input order between equal timestamps. Views whose backend does not return
// newest-first collections apply it once after each fetch.
func SortByCreatedAt(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Facets returns the distinct categories of items, sorted, and their observed
// price range, for rendering filter controls.
func Facets(items []models.Item) ([]string, models.PriceRange) {
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, item := range items {
		if item.Category == "" {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		categories = append(categories, item.Category)
	}
	sort.Strings(categories)

	priceRange, _ := models.ObservedPriceRange(items)
	return categories, priceRange
}
