package resolver

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/stockdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(baseURL string) (*Dispatcher, *stockdb.DB) {
	db := stockdb.New()
	client := marketdata.New(baseURL, "tok", nil, zerolog.Nop())
	return New(db, client, nil, zerolog.Nop()), db
}

func pollUntil(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestResolveDedupesConcurrentRequestsForSameLevel(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"code":"AAPL.US","timestamp":1700000000,"close":190.5,"volume":1000}`))
	}))
	defer server.Close()

	d, db := newDispatcher(server.URL)
	handle, err := db.Request("AAPL.US")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Resolve(context.Background(), handle, domain.LevelRealtime)
		}()
	}
	wg.Wait()

	pollUntil(t, time.Second, func() bool {
		return db.Get(handle).Resolved(domain.LevelRealtime)
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "ten concurrent Resolve calls for the same level should only fetch once")
}

func TestResolveMarksPoisonedAfterThresholdFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d, db := newDispatcher(server.URL)
	handle, err := db.Request("FAIL.US")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		status, rerr := d.Resolve(context.Background(), handle, domain.LevelRealtime)
		require.NoError(t, rerr)
		require.Equal(t, StatusResolving, status)
		pollUntil(t, time.Second, func() bool {
			return db.Get(handle).FetchLevel&domain.LevelRealtime == 0
		})
	}

	assert.True(t, db.Get(handle).Poisoned())

	status, rerr := d.Resolve(context.Background(), handle, domain.LevelRealtime)
	assert.Equal(t, StatusError, status)
	kind, ok := domain.KindOf(rerr)
	require.True(t, ok)
	assert.Equal(t, domain.KindPoisoned, kind)
}

func TestDecodeErrorMarksLevelResolvedWithoutCountingAsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not valid json`))
	}))
	defer server.Close()

	d, db := newDispatcher(server.URL)
	handle, err := db.Request("BAD.US")
	require.NoError(t, err)

	_, rerr := d.Resolve(context.Background(), handle, domain.LevelEOD)
	require.NoError(t, rerr)

	pollUntil(t, time.Second, func() bool {
		return db.Get(handle).Resolved(domain.LevelEOD)
	})
	assert.Equal(t, uint32(0), db.Get(handle).FetchErrors)
	assert.False(t, db.Get(handle).Poisoned())
}

func TestResolveAlreadySatisfiedReturnsOkWithoutRefetching(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"code":"AAPL.US","timestamp":1700000000,"close":190.5,"volume":1000}`))
	}))
	defer server.Close()

	d, db := newDispatcher(server.URL)
	handle, err := db.Request("AAPL.US")
	require.NoError(t, err)

	_, rerr := d.Resolve(context.Background(), handle, domain.LevelRealtime)
	require.NoError(t, rerr)
	pollUntil(t, time.Second, func() bool {
		return db.Get(handle).Resolved(domain.LevelRealtime)
	})

	status, rerr := d.Resolve(context.Background(), handle, domain.LevelRealtime)
	require.NoError(t, rerr)
	assert.Equal(t, StatusOk, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestIngestRealtimeRollsCurrentIntoPreviousOnNewDay(t *testing.T) {
	day1 := int64(1700000000 - 1700000000%86400)
	day2 := day1 + 86400

	var timestamp int64 = day1
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"AAPL.US","timestamp":` + strconv.FormatInt(timestamp, 10) + `,"close":100,"volume":10}`))
	}))
	defer server.Close()

	d, db := newDispatcher(server.URL)
	handle, err := db.Request("AAPL.US")
	require.NoError(t, err)

	require.NoError(t, d.ingestRealtime(context.Background(), handle))
	assert.Equal(t, day1, db.Get(handle).Current.Date)
	assert.Empty(t, db.Get(handle).Previous)

	timestamp = day2
	require.NoError(t, d.ingestRealtime(context.Background(), handle))
	stock := db.Get(handle)
	assert.Equal(t, day2, stock.Current.Date)
	require.Len(t, stock.Previous, 1)
	assert.Equal(t, day1, stock.Previous[0].Date)
}

func TestBuildHistoryDropsStaleZeroVolumeTail(t *testing.T) {
	bars := make([]marketdata.RawDayResult, 10)
	for i := range bars {
		bars[i] = marketdata.RawDayResult{Date: "2026-01-01", Close: 100, Volume: 1000}
	}
	// The oldest three days (tail of the newest-first slice) had no trading.
	bars[7].Volume = 0
	bars[8].Volume = 0
	bars[9].Volume = 0

	history := buildHistory(bars)
	assert.Len(t, history, 7)
}

func TestBuildHistoryKeepsRecentZeroVolumeDays(t *testing.T) {
	bars := make([]marketdata.RawDayResult, 5)
	for i := range bars {
		bars[i] = marketdata.RawDayResult{Date: "2026-01-01", Close: 100, Volume: 1000}
	}
	bars[2].Volume = 0 // within the first 7 days, kept

	history := buildHistory(bars)
	assert.Len(t, history, 5)
}

func TestBuildHistoryComputesChangeFields(t *testing.T) {
	bars := []marketdata.RawDayResult{
		{Date: "2026-01-02", Open: 105, High: 112, Low: 104, Close: 110, AdjustedClose: 110, Volume: 100},
		{Date: "2026-01-01", Open: 98, High: 101, Low: 97, Close: 100, AdjustedClose: 100, Volume: 100},
	}
	history := buildHistory(bars)
	require.Len(t, history, 2)
	assert.Equal(t, 100.0, history[0].PreviousClose)
	assert.Equal(t, 10.0, history[0].Change)
	assert.InDelta(t, 10.0, history[0].ChangeP, 0.001)
	assert.InDelta(t, (112.0-104.0)/100*100, history[0].ChangePHigh, 0.001)
	assert.True(t, math.IsNaN(history[1].PreviousClose))
}
