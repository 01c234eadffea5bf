package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeSingleSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/real-time/AAPL.US", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("api_token"))
		w.Write([]byte(`{"code":"AAPL.US","timestamp":1700000000,"close":190.5,"volume":1000}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-token", nil, zerolog.Nop())
	quote, err := client.Realtime(context.Background(), "AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, "AAPL.US", quote.Code)
	assert.Equal(t, 190.5, quote.Price)
}

func TestRealtimeBatchJoinsExtraSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/real-time/A.US", r.URL.Path)
		assert.Equal(t, "B.US,C.US", r.URL.Query().Get("s"))
		w.Write([]byte(`[{"code":"A.US","close":1},{"code":"B.US","close":2},{"code":"C.US","close":3}]`))
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	quotes, err := client.RealtimeBatch(context.Background(), []string{"A.US", "B.US", "C.US"})
	require.NoError(t, err)
	require.Len(t, quotes, 3)
}

func TestEODOrdersDescending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "d", r.URL.Query().Get("order"))
		w.Write([]byte(`[{"date":"2026-01-02","close":100},{"date":"2026-01-01","close":99}]`))
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	bars, err := client.EOD(context.Background(), "AAPL.US")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2026-01-02", bars[0].Date)
}

func TestTechnicalSetsFunctionParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sma", r.URL.Query().Get("function"))
		w.Write([]byte(`[{"date":"2026-01-01","sma":150.2}]`))
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	bars, err := client.Technical(context.Background(), "AAPL.US", "sma")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 150.2, bars[0].SMA)
}

func TestFundamentalsReturnsRawTree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"General":{"Name":"Apple Inc"},"Highlights":{"PERatio":28.5}}`))
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	tree, err := client.Fundamentals(context.Background(), "AAPL.US")
	require.NoError(t, err)
	general := tree["General"].(map[string]interface{})
	assert.Equal(t, "Apple Inc", general["Name"])
}

func TestExchangeSymbolListExtractsCodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Code":"AAPL"},{"Code":"MSFT"}]`))
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	symbols, err := client.ExchangeSymbolList(context.Background(), "US")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestNewsPassesLimitAndSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL.US", r.URL.Query().Get("s"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"title":"Apple news"}]`))
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	items, err := client.News(context.Background(), "AAPL.US", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Apple news", items[0].Title)
}

func TestFetchFailureReturnsErrorWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "tok", nil, zerolog.Nop())
	_, err := client.EOD(context.Background(), "AAPL.US")
	require.Error(t, err)
}
