package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var ErrInvalidSortKey = errors.New("invalid sort key")

var validSortKeys = []SortKey{SortNewest, SortPriceAsc, SortPriceDesc}

func (k SortKey) IsValid() bool {
	for _, valid := range validSortKeys {
		if k == valid {
			return true
		}
	}
	return false
}

// ParseSortKey converts a query value into a SortKey.
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if !key.IsValid() {
		names := make([]string, 0, len(validSortKeys))
		for _, k := range validSortKeys {
			names = append(names, string(k))
		}
		return "", fmt.Errorf("%w: %q. Valid keys: %s", ErrInvalidSortKey, s, strings.Join(names, ", "))
	}
	return key, nil
}

// FilterState holds the user-selected filter and sort criteria of a view.
// The zero value filters nothing and keeps the backend order.
type FilterState struct {
	categories map[string]struct{}

	MinPrice   float64
	MaxPrice   float64
	PriceSet   bool // false means no price filter
	Sort       SortKey
	SearchText string

	// priceTouched records whether the user narrowed the range; untouched
	// ranges follow the observed range of the collection on Reconcile.
	priceTouched bool
}

// NewFilterState returns the defaults for a freshly fetched collection: no
// category filter, the observed price range and newest-first order.
func NewFilterState(items []Item) FilterState {
	state := FilterState{Sort: SortNewest}
	if r, ok := ObservedPriceRange(items); ok {
		state.MinPrice, state.MaxPrice, state.PriceSet = r.Min, r.Max, true
	}
	return state
}

// ObservedPriceRange returns the min and max price of items. ok is false for
// an empty collection.
func ObservedPriceRange(items []Item) (PriceRange, bool) {
	if len(items) == 0 {
		return PriceRange{}, false
	}
	r := PriceRange{Min: items[0].Price, Max: items[0].Price}
	for _, item := range items[1:] {
		if item.Price < r.Min {
			r.Min = item.Price
		}
		if item.Price > r.Max {
			r.Max = item.Price
		}
	}
	return r, true
}

// ToggleCategory adds name to the selection if absent and removes it if
// present. Toggling the same name twice restores the previous selection.
func (f *FilterState) ToggleCategory(name string) {
	if f.categories == nil {
		f.categories = make(map[string]struct{})
	}
	if _, ok := f.categories[name]; ok {
		delete(f.categories, name)
		return
	}
	f.categories[name] = struct{}{}
}

func (f *FilterState) HasCategory(name string) bool {
	_, ok := f.categories[name]
	return ok
}

// SelectedCategories returns the selection sorted by name.
func (f *FilterState) SelectedCategories() []string {
	out := make([]string, 0, len(f.categories))
	for name := range f.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetPriceRange sets an inclusive price range. When lo > hi the bounds are
// swapped; the return value reports whether that happened.
func (f *FilterState) SetPriceRange(lo, hi float64) bool {
	swapped := false
	if lo > hi {
		lo, hi = hi, lo
		swapped = true
		log.Printf("Filter: price range swapped to [%.2f, %.2f]", lo, hi)
	}
	f.MinPrice, f.MaxPrice = lo, hi
	f.PriceSet = true
	f.priceTouched = true
	return swapped
}

// ClearPriceRange removes the price filter.
func (f *FilterState) ClearPriceRange() {
	f.MinPrice, f.MaxPrice = 0, 0
	f.PriceSet = false
	f.priceTouched = false
}

// SetSort changes the sort key. Unknown keys leave the current sort in place.
func (f *FilterState) SetSort(key string) error {
	parsed, err := ParseSortKey(key)
	if err != nil {
		log.Printf("Filter: keeping sort %q: %v", f.Sort, err)
		return err
	}
	f.Sort = parsed
	return nil
}

func (f *FilterState) SetSearchText(text string) {
	f.SearchText = strings.TrimSpace(text)
}

// Reconcile adapts the state to a newly fetched collection. Selected
// categories that no longer exist are dropped, and a price range the user
// never touched follows the new observed range.
func (f *FilterState) Reconcile(items []Item) {
	if len(f.categories) > 0 {
		present := make(map[string]struct{}, len(items))
		for _, item := range items {
			present[item.Category] = struct{}{}
		}
		for name := range f.categories {
			if _, ok := present[name]; !ok {
				log.Printf("Filter: dropping category %q, no longer in collection", name)
				delete(f.categories, name)
			}
		}
	}

	if !f.priceTouched {
		if r, ok := ObservedPriceRange(items); ok {
			f.MinPrice, f.MaxPrice, f.PriceSet = r.Min, r.Max, true
		} else {
			f.MinPrice, f.MaxPrice, f.PriceSet = 0, 0, false
		}
	}
}

// Clone returns a copy that shares no state with f.
func (f FilterState) Clone() FilterState {
	out := f
	if f.categories != nil {
		out.categories = make(map[string]struct{}, len(f.categories))
		for name := range f.categories {
			out.categories[name] = struct{}{}
		}
	}
	return out
}

type filterStateJSON struct {
	Categories []string `json:"categories"`
	MinPrice   *float64 `json:"min_price,omitempty"`
	MaxPrice   *float64 `json:"max_price,omitempty"`
	Sort       SortKey  `json:"sort"`
	SearchText string   `json:"q,omitempty"`
}

func (f FilterState) MarshalJSON() ([]byte, error) {
	out := filterStateJSON{
		Categories: f.SelectedCategories(),
		Sort:       f.Sort,
		SearchText: f.SearchText,
	}
	if out.Sort == "" {
		out.Sort = SortNewest
	}
	if f.PriceSet {
		lo, hi := f.MinPrice, f.MaxPrice
		out.MinPrice, out.MaxPrice = &lo, &hi
	}
	return json.Marshal(out)
}

// PageWindow is the 0-based pagination position of a view.
type PageWindow struct {
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
}
