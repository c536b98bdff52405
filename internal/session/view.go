// Package session holds the lifecycle of one listing view: the fetched
// collection, the operator's filter state, the page window and the row
// selection. A View replaces ambient page state with an object that is
// mounted, used and unmounted explicitly.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"marketplace-listing-api/internal/fetchers"
	"marketplace-listing-api/internal/models"
	"marketplace-listing-api/internal/services"
)

var (
	ErrNotMounted      = errors.New("view not mounted")
	ErrUnknownCategory = errors.New("category not in collection")
)

// Fetcher loads a collection.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Item, error)
	Refresh(ctx context.Context) ([]models.Item, error)
	Invalidate(ctx context.Context)
	Loading() bool
}

// Dispatcher sends mutations.
type Dispatcher interface {
	Dispatch(ctx context.Context, m fetchers.Mutation, onSuccess func()) error
	DispatchBulk(ctx context.Context, b fetchers.BulkMutation, onSuccess func()) error
}

// Page is what a view renders.
type Page struct {
	Items      []models.Item
	Total      int
	PageIndex  int
	PageSize   int
	TotalPages int
	Filters    models.FilterState
	Categories []string
	PriceRange models.PriceRange
	Selected   []string
	Loading    bool
	LoadedAt   time.Time
	Err        error
}

// View is one mounted listing screen.
type View struct {
	name       string
	fetcher    Fetcher
	dispatcher Dispatcher

	mu         sync.Mutex
	mounted    bool
	generation uint64
	mutations  uint64 // confirmed mutations since New
	items      []models.Item
	loadedAt   time.Time
	loading    bool
	lastErr    error
	filters    models.FilterState
	window     models.PageWindow
	selected   map[string]struct{}
}

func New(name string, fetcher Fetcher, dispatcher Dispatcher) *View {
	return &View{
		name:       name,
		fetcher:    fetcher,
		dispatcher: dispatcher,
		items:      []models.Item{},
		window:     models.PageWindow{PageSize: models.DefaultPageSize},
		selected:   make(map[string]struct{}),
	}
}

func (v *View) Name() string {
	return v.name
}

// Mount loads the collection and initializes the filter state from it. A
// failed load still mounts the view, in its empty-with-error state.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	v.mounted = true
	v.generation++
	gen, seen := v.generation, v.mutations
	v.loading = true
	v.mu.Unlock()

	items, err := v.fetcher.Fetch(ctx)
	if errors.Is(err, fetchers.ErrFetchInFlight) {
		v.mu.Lock()
		v.loading = false
		v.mu.Unlock()
		return err
	}
	if v.apply(gen, items, err, true) {
		v.catchUp(ctx, seen)
	}
	return err
}

// Unmount tears the view down. Fetches still running are discarded when
// they complete.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.mounted = false
	v.generation++
	v.loading = false
	v.items = []models.Item{}
	v.lastErr = nil
	v.filters = models.FilterState{}
	v.window.PageIndex = 0
	v.selected = make(map[string]struct{})
}

func (v *View) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

// Refresh reloads the collection, bypassing the snapshot cache. A refresh
// triggered while one is running returns fetchers.ErrFetchInFlight and
// leaves the view untouched.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return ErrNotMounted
	}
	gen, seen := v.generation, v.mutations
	v.mu.Unlock()

	items, err := v.fetcher.Refresh(ctx)
	if errors.Is(err, fetchers.ErrFetchInFlight) {
		return err
	}
	if v.apply(gen, items, err, false) {
		v.catchUp(ctx, seen)
	}
	return err
}

// catchUp reloads once more when a mutation was confirmed after the fetch
// that just completed had started. Its result may predate the mutation, and
// the refresh the mutation asked for was refused while that fetch ran.
func (v *View) catchUp(ctx context.Context, seen uint64) {
	v.mu.Lock()
	behind := v.mounted && v.mutations > seen
	v.mu.Unlock()
	if !behind {
		return
	}

	log.Printf("View %s: reloading, collection predates a confirmed mutation", v.name)
	if err := v.Refresh(ctx); err != nil && !errors.Is(err, fetchers.ErrFetchInFlight) {
		log.Printf("View %s: catch-up refresh failed: %v", v.name, err)
	}
}

// apply installs a fetch result. It reports false when the result belongs to
// a mount that no longer exists.
func (v *View) apply(gen uint64, items []models.Item, err error, initial bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted || gen != v.generation {
		log.Printf("View %s: discarding fetch result from a stale mount", v.name)
		return false
	}

	v.loading = false
	if err != nil {
		log.Printf("View %s: %s (%v)", v.name, fetchers.UserMessage(err), err)
		v.items = []models.Item{}
		v.lastErr = err
		v.loadedAt = time.Time{}
	} else {
		v.items = items
		v.lastErr = nil
		v.loadedAt = time.Now()
	}

	if initial {
		v.filters = models.NewFilterState(v.items)
		v.window.PageIndex = 0
	} else {
		v.filters.Reconcile(v.items)
	}
	v.pruneSelection()
	return true
}

func (v *View) pruneSelection() {
	if len(v.selected) == 0 {
		return
	}
	present := make(map[string]struct{}, len(v.items))
	for _, item := range v.items {
		present[item.ID] = struct{}{}
	}
	for id := range v.selected {
		if _, ok := present[id]; !ok {
			delete(v.selected, id)
		}
	}
}

// ToggleCategory toggles a category filter. Categories absent from the
// collection are refused so the selection stays a subset of it.
func (v *View) ToggleCategory(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.filters.HasCategory(name) && !v.hasCategory(name) {
		log.Printf("View %s: ignoring unknown category %q", v.name, name)
		return ErrUnknownCategory
	}
	v.filters.ToggleCategory(name)
	v.window.PageIndex = 0
	return nil
}

func (v *View) hasCategory(name string) bool {
	for _, item := range v.items {
		if item.Category == name {
			return true
		}
	}
	return false
}

// SetPriceRange sets the price filter, swapping inverted bounds.
func (v *View) SetPriceRange(lo, hi float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	swapped := v.filters.SetPriceRange(lo, hi)
	v.window.PageIndex = 0
	return swapped
}

// SetSort changes the order. An unknown key keeps the current order and the
// current page.
func (v *View) SetSort(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.filters.SetSort(key); err != nil {
		return err
	}
	v.window.PageIndex = 0
	return nil
}

func (v *View) SetSearchText(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.filters.SetSearchText(text)
	v.window.PageIndex = 0
}

func (v *View) SetPage(pageIndex int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.window.PageIndex = pageIndex
}

func (v *View) SetPageSize(pageSize int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if pageSize > models.MaxPageSize {
		pageSize = models.MaxPageSize
	}
	v.window.PageSize = pageSize
	v.window.PageIndex = 0
}

func (v *View) Filters() models.FilterState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters.Clone()
}

// Select marks rows for a bulk action.
func (v *View) Select(ids ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		v.selected[id] = struct{}{}
	}
}

func (v *View) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = make(map[string]struct{})
}

func (v *View) Selected() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectedLocked()
}

func (v *View) selectedLocked() []string {
	out := make([]string, 0, len(v.selected))
	for id := range v.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Result derives the current page from the view's own state. The page index
// is clamped, and the clamped value is kept.
func (v *View) Result() Page {
	v.mu.Lock()
	defer v.mu.Unlock()

	page := v.render(v.filters, v.window)
	v.window.PageIndex = page.PageIndex
	page.Selected = v.selectedLocked()
	return page
}

// Query derives a page for a caller-supplied state without touching the
// view's own state.
func (v *View) Query(state models.FilterState, window models.PageWindow) Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.render(state, window)
}

// Snapshot returns the raw collection and its facets.
func (v *View) Snapshot() ([]models.Item, []string, models.PriceRange) {
	v.mu.Lock()
	defer v.mu.Unlock()
	categories, priceRange := services.Facets(v.items)
	return v.items, categories, priceRange
}

func (v *View) render(state models.FilterState, window models.PageWindow) Page {
	view := services.Derive(v.items, state)
	_, totalPages := services.Paginate(view, 0, window.PageSize)
	pageIndex := services.ClampPage(window.PageIndex, totalPages)
	items, _ := services.Paginate(view, pageIndex, window.PageSize)
	categories, priceRange := services.Facets(v.items)

	pageSize := window.PageSize
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if pageSize > models.MaxPageSize {
		pageSize = models.MaxPageSize
	}

	return Page{
		Items:      items,
		Total:      len(view),
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Filters:    state.Clone(),
		Categories: categories,
		PriceRange: priceRange,
		Loading:    v.loading || v.fetcher.Loading(),
		LoadedAt:   v.loadedAt,
		Err:        v.lastErr,
	}
}

// Dispatch sends a row mutation. Only a confirmed success changes the view:
// the snapshot cache is dropped, the selection cleared and the collection
// reloaded.
func (v *View) Dispatch(ctx context.Context, m fetchers.Mutation) error {
	if !v.Mounted() {
		return ErrNotMounted
	}
	return v.dispatcher.Dispatch(ctx, m, func() { v.afterMutation(ctx) })
}

// DispatchBulk applies an action to the given ids, or to the current
// selection when ids is empty.
func (v *View) DispatchBulk(ctx context.Context, action fetchers.Action, ids []string) error {
	if !v.Mounted() {
		return ErrNotMounted
	}
	if len(ids) == 0 {
		ids = v.Selected()
	}
	return v.dispatcher.DispatchBulk(ctx, fetchers.BulkMutation{Action: action, IDs: ids}, func() { v.afterMutation(ctx) })
}

// afterMutation runs once the backend confirmed a mutation. When a fetch is
// already running, its caller reloads again on completion (see catchUp).
func (v *View) afterMutation(ctx context.Context) {
	v.fetcher.Invalidate(ctx)

	v.mu.Lock()
	v.mutations++
	v.selected = make(map[string]struct{})
	v.mu.Unlock()

	if err := v.Refresh(ctx); err != nil && !errors.Is(err, fetchers.ErrFetchInFlight) {
		log.Printf("View %s: refresh after mutation failed: %v", v.name, err)
	}
}
