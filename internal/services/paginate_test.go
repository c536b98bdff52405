package services

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-listing-api/internal/models"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestPaginate_EmptyViewHasOnePage(t *testing.T) {
	page, totalPages := Paginate(nil, 0, 10)

	assert.Empty(t, page)
	assert.Equal(t, 1, totalPages)
}

func TestPaginate_TotalPages(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	items := randomItems(r, 25)

	_, totalPages := Paginate(items, 0, 10)
	assert.Equal(t, 3, totalPages)

	_, totalPages = Paginate(items, 0, 5)
	assert.Equal(t, 5, totalPages)

	_, totalPages = Paginate(items, 0, 100)
	assert.Equal(t, 1, totalPages)
}

func TestPaginate_CoverageWithoutDuplicates(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for round := 0; round < 30; round++ {
		items := randomItems(r, r.Intn(70))
		pageSize := 1 + r.Intn(12)

		_, totalPages := Paginate(items, 0, pageSize)
		var rebuilt []models.Item
		for i := 0; i < totalPages; i++ {
			page, _ := Paginate(items, i, pageSize)
			if i < totalPages-1 {
				require.NotEmpty(t, page, "page %d of %d is empty", i, totalPages)
			}
			rebuilt = append(rebuilt, page...)
		}

		assert.Equal(t, ids(items), ids(rebuilt))
	}
}

func TestPaginate_OutOfRangeIndex(t *testing.T) {
	items := sampleItems()

	page, totalPages := Paginate(items, 5, 2)
	assert.Empty(t, page)
	assert.Equal(t, 2, totalPages)

	page, _ = Paginate(items, -1, 2)
	assert.Empty(t, page)

	// Large enough for pageIndex*pageSize to overflow.
	assert.NotPanics(t, func() {
		page, totalPages = Paginate(items, math.MaxInt64/5, 10)
	})
	assert.Empty(t, page)
	assert.Equal(t, 1, totalPages)
}

func TestPaginate_PageSizeLimits(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	items := randomItems(r, 150)

	page, totalPages := Paginate(items, 0, 0)
	assert.Len(t, page, models.DefaultPageSize)
	assert.Equal(t, 15, totalPages)

	page, totalPages = Paginate(items, 0, 1000)
	assert.Len(t, page, models.MaxPageSize)
	assert.Equal(t, 2, totalPages)
}

func TestPaginate_PageCannotGrowIntoView(t *testing.T) {
	items := sampleItems()
	page, _ := Paginate(items, 0, 2)

	page = append(page, models.Item{ID: "intruder"})

	assert.Equal(t, "3", items[2].ID)
	assert.Len(t, page, 3)
}

func TestClampPage(t *testing.T) {
	assert.Equal(t, 0, ClampPage(0, 1))
	assert.Equal(t, 2, ClampPage(7, 3))
	assert.Equal(t, 0, ClampPage(-4, 3))
	assert.Equal(t, 1, ClampPage(1, 3))
}

func TestClampAfterFilterNarrows(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	items := randomItems(r, 50)
	pageIndex := 4

	state := models.FilterState{}
	state.SetPriceRange(0, 20)
	view := Derive(items, state)

	_, totalPages := Paginate(view, pageIndex, 10)
	pageIndex = ClampPage(pageIndex, totalPages)
	page, _ := Paginate(view, pageIndex, 10)

	assert.Less(t, pageIndex, totalPages)
	if len(view) > 0 {
		assert.NotEmpty(t, page)
	}
}
