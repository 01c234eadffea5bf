package realtimestream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, baseURL string) (*Monitor, *Stream) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.bin")
	stream, seed, err := Open(path)
	require.NoError(t, err)
	client := marketdata.New(baseURL, "tok", nil, zerolog.Nop())
	return New(stream, seed, client, nil, zerolog.Nop()), stream
}

func TestRegisterInsertsNewSymbol(t *testing.T) {
	m, stream := newTestMonitor(t, "")
	defer stream.Close()

	rec := &domain.RealtimeRecord{Timestamp: 1700000000, Price: 100, Volume: 10}
	stock := m.Register("AAPL.US", rec)
	assert.Equal(t, "AAPL.US", stock.Code)
	assert.True(t, stock.Refresh)
	assert.Equal(t, 100.0, stock.Price)

	got, ok := m.Get("AAPL.US")
	require.True(t, ok)
	assert.Same(t, stock, got)
}

func TestInsertRecordDedupesByTimestamp(t *testing.T) {
	m, stream := newTestMonitor(t, "")
	defer stream.Close()

	stock := m.Register("AAPL.US", nil)
	assert.True(t, m.insertRecord(stock, domain.RealtimeRecord{Timestamp: 100, Price: 1}))
	assert.False(t, m.insertRecord(stock, domain.RealtimeRecord{Timestamp: 100, Price: 2}))
	assert.Len(t, stock.Records, 1)
	assert.Equal(t, 1.0, stock.Records[0].Price)
}

func TestInsertRecordKeepsAscendingOrder(t *testing.T) {
	m, stream := newTestMonitor(t, "")
	defer stream.Close()

	stock := m.Register("AAPL.US", nil)
	m.insertRecord(stock, domain.RealtimeRecord{Timestamp: 300})
	m.insertRecord(stock, domain.RealtimeRecord{Timestamp: 100})
	m.insertRecord(stock, domain.RealtimeRecord{Timestamp: 200})

	require.Len(t, stock.Records, 3)
	assert.Equal(t, int64(100), stock.Records[0].Timestamp)
	assert.Equal(t, int64(200), stock.Records[1].Timestamp)
	assert.Equal(t, int64(300), stock.Records[2].Timestamp)
}

func TestStaleBatchesChunksAtThirtyTwo(t *testing.T) {
	m, stream := newTestMonitor(t, "")
	defer stream.Close()

	for i := 0; i < 65; i++ {
		code := string(rune('A'+i%26)) + strconv.Itoa(i) + ".US"
		m.Register(code, nil)
	}

	batches := m.staleBatches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 32)
	assert.Len(t, batches[1], 32)
	assert.Len(t, batches[2], 1)
}

func TestPollOnceAppliesQuotesAndWritesStream(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[{"code":"AAPL.US","timestamp":` + strconv.FormatInt(time.Now().Unix(), 10) + `,"close":150,"volume":5}]`))
	}))
	defer server.Close()

	m, stream := newTestMonitor(t, server.URL)
	defer stream.Close()
	m.Register("AAPL.US", nil)

	m.pollOnce(context.Background())

	stock, ok := m.Get("AAPL.US")
	require.True(t, ok)
	assert.Equal(t, 150.0, stock.Price)
	require.Len(t, stock.Records, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	info, err := stream.file.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize+recordSize), info.Size())
}

func TestPollOnceSkipsWhenMarketClosed(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	m, stream := newTestMonitor(t, server.URL)
	defer stream.Close()
	m.Register("AAPL.US", nil)
	m.SetMarketOpenCheck(func() bool { return false })

	m.pollOnce(context.Background())
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
