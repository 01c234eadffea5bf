package stockdb

import (
	"sync"
	"testing"

	"github.com/stockworks/workbench/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeHandleRejectsEmptySymbol(t *testing.T) {
	db := New()
	_, err := db.InitializeHandle("")
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindInvalidArgument, kind)
}

func TestInitializeHandleIsPureAndDeterministic(t *testing.T) {
	db := New()
	h1, err := db.InitializeHandle("AAPL.US")
	require.NoError(t, err)
	h2, err := db.InitializeHandle("AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.True(t, h1.Valid())
}

func TestRequestCreatesStockOnFirstSight(t *testing.T) {
	db := New()
	handle, err := db.Request("AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, 1, db.Len())

	stock := db.Get(handle)
	assert.Equal(t, "AAPL.US", stock.CodeSymbol)
}

func TestRequestDeduplicatesSameSymbol(t *testing.T) {
	db := New()
	h1, err := db.Request("AAPL.US")
	require.NoError(t, err)
	h2, err := db.Request("AAPL.US")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, db.Len())
}

func TestGetUnknownHandleReturnsSentinel(t *testing.T) {
	db := New()
	handle := domain.Handle{ID: 12345, CodeSymbol: "NOPE.US"}

	stock := db.Get(handle)
	require.NotNil(t, stock)
	assert.True(t, stock.Current.Open != stock.Current.Open) // NaN != NaN
}

func TestGetInvalidHandleReturnsSentinel(t *testing.T) {
	db := New()
	stock := db.Get(domain.Handle{})
	require.NotNil(t, stock)
	assert.Equal(t, "", stock.CodeSymbol)
}

func TestMutateUnknownHandleReturnsInvalidHandle(t *testing.T) {
	db := New()
	err := db.Mutate(domain.Handle{ID: 999}, func(s *domain.Stock) {})
	require.Error(t, err)
	kind, _ := domain.KindOf(err)
	assert.Equal(t, domain.KindInvalidHandle, kind)
}

func TestMutateAppliesToCorrectSlot(t *testing.T) {
	db := New()
	handle, err := db.Request("AAPL.US")
	require.NoError(t, err)

	err = db.Mutate(handle, func(s *domain.Stock) {
		s.MarkResolved(domain.LevelRealtime, 100)
	})
	require.NoError(t, err)

	stock := db.Get(handle)
	assert.True(t, stock.Resolved(domain.LevelRealtime))
}

func TestGrowthDoublesCapacityExactlyOnce(t *testing.T) {
	db := New()
	db.capacity = 4 // shrink for a fast test; slot 0 is the sentinel, so three stocks fill it

	for i := 0; i < 3; i++ {
		_, err := db.Request(string(rune('A' + i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, db.Growths())

	_, err := db.Request("D")
	require.NoError(t, err)
	assert.Equal(t, 1, db.Growths())
	assert.Equal(t, 8, db.capacity)
}

func TestGrowthPreservesExistingMappings(t *testing.T) {
	db := New()
	db.capacity = 2

	handles := make([]domain.Handle, 0, 10)
	for i := 0; i < 10; i++ {
		h, err := db.Request(string(rune('A' + i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for i, h := range handles {
		stock := db.Get(h)
		assert.Equal(t, string(rune('A'+i)), stock.CodeSymbol)
	}
	assert.Greater(t, db.Growths(), 0)
}

func TestConcurrentRequestsForSameSymbolResultInOneSlot(t *testing.T) {
	db := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = db.Request("AAPL.US")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, db.Len())
}

func TestFetchLevelAndResolvedLevelNeverOverlap(t *testing.T) {
	db := New()
	handle, err := db.Request("AAPL.US")
	require.NoError(t, err)

	require.NoError(t, db.Mutate(handle, func(s *domain.Stock) {
		s.MarkFetching(domain.LevelRealtime|domain.LevelEOD, 1)
	}))
	require.NoError(t, db.Mutate(handle, func(s *domain.Stock) {
		s.MarkResolved(domain.LevelRealtime, 2)
	}))

	stock := db.Get(handle)
	assert.Zero(t, stock.FetchLevel&stock.ResolvedLevel)
	assert.True(t, stock.Resolved(domain.LevelRealtime))
	assert.False(t, stock.Resolved(domain.LevelEOD))
	assert.True(t, stock.Resolving(domain.LevelEOD))
}
