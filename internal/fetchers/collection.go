package fetchers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"marketplace-listing-api/internal/models"
	"marketplace-listing-api/internal/services"
	"marketplace-listing-api/pkg/cache"
	"marketplace-listing-api/pkg/credentials"
)

// FetcherConfig describes one backend collection.
type FetcherConfig struct {
	Name     string
	Endpoint string
	Timeout  time.Duration
	Schema   Schema

	// NewestByTimestamp re-sorts each fetched collection by CreatedAt instead
	// of trusting the backend to return newest first.
	NewestByTimestamp bool
}

// Collection is the state of a fetcher as seen by a view.
type Collection struct {
	Items     []models.Item
	FetchedAt time.Time
	Loading   bool
	Err       error
}

// CollectionFetcher loads one collection with an authenticated GET.
type CollectionFetcher struct {
	cfg       FetcherConfig
	creds     credentials.Store
	cache     *cache.RedisCache
	transport *transport

	mu        sync.Mutex
	inFlight  bool
	items     []models.Item
	fetchedAt time.Time
	lastErr   error
}

// NewCollectionFetcher creates a fetcher. redisCache may be nil.
func NewCollectionFetcher(cfg FetcherConfig, creds credentials.Store, redisCache *cache.RedisCache) *CollectionFetcher {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Name == "" {
		cfg.Name = cfg.Endpoint
	}
	if cfg.Schema.IDKeys == nil {
		cfg.Schema = DefaultSchema()
	}

	return &CollectionFetcher{
		cfg:       cfg,
		creds:     creds,
		cache:     redisCache,
		transport: newTransport(cfg.Name, cfg.Timeout),
		items:     []models.Item{},
	}
}

func (f *CollectionFetcher) Name() string {
	return f.cfg.Name
}

func (f *CollectionFetcher) Endpoint() string {
	return f.cfg.Endpoint
}

// Fetch loads the collection, serving it from the snapshot cache when one is
// available. On failure it returns an empty collection and the error.
func (f *CollectionFetcher) Fetch(ctx context.Context) ([]models.Item, error) {
	return f.run(ctx, true)
}

// Refresh drops any cached snapshot and loads the collection again. A refresh
// issued while another fetch is running is ignored with ErrFetchInFlight.
func (f *CollectionFetcher) Refresh(ctx context.Context) ([]models.Item, error) {
	return f.run(ctx, false)
}

// Invalidate drops the cached snapshot for the current credential.
func (f *CollectionFetcher) Invalidate(ctx context.Context) {
	if !f.cache.IsAvailable() {
		return
	}
	token, err := f.creds.Token(ctx)
	if err != nil {
		return
	}
	key := f.cache.GenerateCollectionKey(f.cfg.Endpoint, credentials.Fingerprint(token))
	if err := f.cache.Invalidate(ctx, key); err != nil {
		log.Printf("%s: failed to invalidate cache: %v", f.cfg.Name, err)
	}
}

// Snapshot returns the latest collection state.
func (f *CollectionFetcher) Snapshot() Collection {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Collection{
		Items:     f.items,
		FetchedAt: f.fetchedAt,
		Loading:   f.inFlight,
		Err:       f.lastErr,
	}
}

func (f *CollectionFetcher) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *CollectionFetcher) run(ctx context.Context, useCache bool) ([]models.Item, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		log.Printf("%s: fetch already in flight, ignoring trigger", f.cfg.Name)
		return nil, ErrFetchInFlight
	}
	f.inFlight = true
	f.mu.Unlock()

	startTime := time.Now()
	items, fetchedAt, err := f.load(ctx, useCache)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false

	if err != nil {
		log.Printf("%s fetch failed after %s: %v", f.cfg.Name, time.Since(startTime), err)
		f.items = []models.Item{}
		f.fetchedAt = time.Time{}
		f.lastErr = err
		return []models.Item{}, err
	}

	log.Printf("%s fetch completed: %d items in %s", f.cfg.Name, len(items), time.Since(startTime))
	f.items = items
	f.fetchedAt = fetchedAt
	f.lastErr = nil
	return items, nil
}

func (f *CollectionFetcher) load(ctx context.Context, useCache bool) ([]models.Item, time.Time, error) {
	token, err := f.creds.Token(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fetch %s: %w", f.cfg.Name, err)
	}

	cacheKey := ""
	if f.cache.IsAvailable() {
		cacheKey = f.cache.GenerateCollectionKey(f.cfg.Endpoint, credentials.Fingerprint(token))
		if useCache {
			if cached, err := f.cache.GetCollection(ctx, cacheKey); err == nil && cached != nil {
				log.Printf("Cache HIT for key: %s", cacheKey)
				return cached.Items, cached.FetchedAt, nil
			}
			log.Printf("Cache MISS for key: %s", cacheKey)
		} else if err := f.cache.Invalidate(ctx, cacheKey); err != nil {
			log.Printf("%s: failed to invalidate cache: %v", f.cfg.Name, err)
		}
	}

	items, err := f.request(ctx, token)
	if err != nil {
		return nil, time.Time{}, err
	}
	if f.cfg.NewestByTimestamp {
		items = services.SortByCreatedAt(items)
	}
	fetchedAt := time.Now()

	if cacheKey != "" {
		snapshot := &cache.Snapshot{Items: items, FetchedAt: fetchedAt}
		if err := f.cache.SetCollection(ctx, cacheKey, snapshot); err != nil {
			log.Printf("Failed to cache collection: %v", err)
		} else {
			log.Printf("Cached collection for key: %s", cacheKey)
		}
	}

	return items, fetchedAt, nil
}

func (f *CollectionFetcher) request(ctx context.Context, token string) ([]models.Item, error) {
	op := "fetch " + f.cfg.Name

	status, body, err := f.transport.do(ctx, http.MethodGet, f.cfg.Endpoint, token, nil)
	if err != nil {
		return nil, &ActionError{Op: op, Kind: KindTransport, Err: err}
	}
	if !isSuccessStatus(status) {
		return nil, &ActionError{Op: op, Kind: KindHTTPStatus, Status: status, Message: envelopeMessage(body)}
	}

	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: err}
	}
	if env.Success == nil {
		return nil, &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: errors.New("missing success flag")}
	}
	if !*env.Success {
		return nil, &ActionError{Op: op, Kind: KindRejected, Status: status, Message: env.Message}
	}

	var records []map[string]any
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: errors.New("missing data array")}
	}
	if err := json.Unmarshal(env.Data, &records); err != nil {
		return nil, &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: err}
	}

	items, err := f.cfg.Schema.DecodeAll(records)
	if err != nil {
		return nil, &ActionError{Op: op, Kind: KindMalformed, Status: status, Err: err}
	}
	return items, nil
}
