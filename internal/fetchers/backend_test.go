package fetchers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
)

const testToken = "operator-token"

// fakeBackend is a minimal marketplace admin API for one collection.
type fakeBackend struct {
	mu       sync.Mutex
	records  []map[string]any
	listBody string // overrides the list response when set
	status   int    // overrides the list status when set

	mutationStatus int
	mutationBody   string
	mutations      []recordedMutation

	listCalls atomic.Int32
	release   chan struct{} // when set, list requests wait on it
	entered   chan struct{}
}

type recordedMutation struct {
	Method string
	Path   string
	Body   map[string]any
	Auth   string
}

func newFakeBackend(t *testing.T, records []map[string]any) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{records: records}

	r := chi.NewRouter()
	r.Route("/api/admin/products", func(pr chi.Router) {
		pr.Get("/", b.handleList)
		pr.Post("/manage", b.handleMutation)
		pr.Post("/{id}", b.handleMutation)
		pr.Put("/{id}", b.handleMutation)
		pr.Delete("/{id}", b.handleMutation)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	b.listCalls.Add(1)
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"Token invalide"}`))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	status := http.StatusOK
	if b.status != 0 {
		status = b.status
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if b.listBody != "" {
		_, _ = w.Write([]byte(b.listBody))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": b.records})
}

func (b *fakeBackend) handleMutation(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.mutations = append(b.mutations, recordedMutation{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   body,
		Auth:   r.Header.Get("Authorization"),
	})
	status, respBody := b.mutationStatus, b.mutationBody
	b.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if respBody == "" {
		respBody = `{"success":true,"message":"ok"}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(respBody))
}

func (b *fakeBackend) lastMutation() recordedMutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.mutations) == 0 {
		return recordedMutation{}
	}
	return b.mutations[len(b.mutations)-1]
}

func productRecords() []map[string]any {
	return []map[string]any{
		{"_id": "p1", "name": "Attiéké garni", "price": 1500.0, "subcategory": map[string]any{"name": "Restaurants"}, "status": "approved", "createdAt": "2024-05-03T10:00:00Z", "description": "Poisson braisé"},
		{"_id": "p2", "name": "Formation Go", "price": "25 000 FCFA", "subcategory": map[string]any{"name": "Trainings"}, "status": "pending", "createdAt": "2024-05-02T10:00:00Z"},
		{"_id": "p3", "name": "Concert Cotonou", "price": 5000.0, "subcategory": map[string]any{"name": "Events"}, "status": "pending", "createdAt": "2024-05-01T10:00:00Z", "seller": map[string]any{"shopName": "Live Bénin"}},
	}
}
