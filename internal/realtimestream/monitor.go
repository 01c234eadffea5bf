package realtimestream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/events"
	"github.com/stockworks/workbench/internal/marketdata"
)

const (
	pollInterval = 60 * time.Second
	batchDelay   = 2 * time.Second
	maxBatchSize = 32
	staleAfter   = 5 * time.Minute
)

// Monitor is the Real-time Monitor: a globally sorted vector of tracked
// symbols, kept fresh by a single background goroutine that batches stale
// symbols to the provider's multi-symbol endpoint and mirrors every new
// observation onto the on-disk Stream.
type Monitor struct {
	mu     sync.RWMutex
	stocks []*domain.RealtimeStock
	index  map[uint64]int

	stream  *Stream
	market  *marketdata.Client
	eventsM *events.Manager
	log     zerolog.Logger

	marketOpen func() bool

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a Monitor backed by stream, seeding its in-memory vectors from
// seed (the records Open already validated and loaded from disk).
func New(stream *Stream, seed []Record, market *marketdata.Client, mgr *events.Manager, log zerolog.Logger) *Monitor {
	m := &Monitor{
		index:      make(map[uint64]int),
		stream:     stream,
		market:     market,
		eventsM:    mgr,
		log:        log.With().Str("component", "realtimestream").Logger(),
		marketOpen: func() bool { return true },
		stop:       make(chan struct{}),
	}

	for _, rec := range seed {
		code := rec.CodeString()
		if code == "" {
			continue
		}
		stock := m.ensureLocked(code)
		m.insertRecord(stock, domain.RealtimeRecord{Timestamp: rec.Timestamp, Price: rec.Price, Volume: rec.Volume})
		if rec.Timestamp >= stock.Timestamp {
			stock.Timestamp = rec.Timestamp
			stock.Price = rec.Price
			stock.Volume = rec.Volume
		}
	}
	return m
}

// SetMarketOpenCheck overrides the predicate the poller consults before each
// pass; by default the market is always considered open.
func (m *Monitor) SetMarketOpenCheck(fn func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketOpen = fn
}

// Register handles a "new stock registered" event: it inserts the symbol
// (or marks an existing one for refresh) and appends any initial record
// supplied with the registration.
func (m *Monitor) Register(code string, initial *domain.RealtimeRecord) *domain.RealtimeStock {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock := m.ensureLocked(code)
	stock.Refresh = true
	if initial != nil {
		m.insertRecord(stock, *initial)
		if initial.Timestamp >= stock.Timestamp {
			stock.Timestamp = initial.Timestamp
			stock.Price = initial.Price
			stock.Volume = initial.Volume
		}
	}
	return stock
}

// Get returns the tracked stock for code, if any.
func (m *Monitor) Get(code string) (*domain.RealtimeStock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.index[domain.HashSymbol(code)]
	if !ok {
		return nil, false
	}
	return m.stocks[idx], true
}

// ensureLocked must be called with mu held for writing.
func (m *Monitor) ensureLocked(code string) *domain.RealtimeStock {
	key := domain.HashSymbol(code)
	if idx, ok := m.index[key]; ok {
		return m.stocks[idx]
	}
	stock := &domain.RealtimeStock{Key: key, Code: code}
	i := sort.Search(len(m.stocks), func(i int) bool { return m.stocks[i].Key >= key })
	m.stocks = append(m.stocks, nil)
	copy(m.stocks[i+1:], m.stocks[i:])
	m.stocks[i] = stock
	for j := i; j < len(m.stocks); j++ {
		m.index[m.stocks[j].Key] = j
	}
	return stock
}

// insertRecord binary-searches stock's ascending-by-timestamp record vector
// and inserts rec in sorted position, reporting false if a record at that
// exact timestamp already exists (the per-stock dedup rule).
func (m *Monitor) insertRecord(stock *domain.RealtimeStock, rec domain.RealtimeRecord) bool {
	i := sort.Search(len(stock.Records), func(i int) bool {
		return stock.Records[i].Timestamp >= rec.Timestamp
	})
	if i < len(stock.Records) && stock.Records[i].Timestamp == rec.Timestamp {
		return false
	}
	stock.Records = append(stock.Records, domain.RealtimeRecord{})
	copy(stock.Records[i+1:], stock.Records[i:])
	stock.Records[i] = rec
	return true
}

// Start launches the background poller. It returns immediately; the poller
// stops when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	go m.pollLoop(ctx)
}

// Stop signals the poller to exit; safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

// pollOnce batches every stale symbol (≤32 per request) and walks the
// batches with a 2-second gap between requests, checking the stop signal
// between batches and honoring a market-closed predicate.
func (m *Monitor) pollOnce(ctx context.Context) {
	if !m.marketOpenNow() {
		return
	}

	for _, batch := range m.staleBatches() {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		default:
		}

		quotes, err := m.market.RealtimeBatch(ctx, batch)
		if err != nil {
			m.log.Warn().Err(err).Strs("symbols", batch).Msg("real-time batch fetch failed")
		} else {
			m.applyQuotes(quotes)
		}

		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-time.After(batchDelay):
		}
	}
}

func (m *Monitor) marketOpenNow() bool {
	m.mu.RLock()
	fn := m.marketOpen
	m.mu.RUnlock()
	return fn == nil || fn()
}

// staleBatches collects every tracked symbol whose last update is older
// than 5 minutes and chunks them into groups of at most 32.
func (m *Monitor) staleBatches() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-staleAfter).Unix()
	var stale []string
	for _, s := range m.stocks {
		if s.Timestamp < cutoff {
			stale = append(stale, s.Code)
		}
	}

	var batches [][]string
	for len(stale) > 0 {
		n := maxBatchSize
		if n > len(stale) {
			n = len(stale)
		}
		batches = append(batches, stale[:n])
		stale = stale[n:]
	}
	return batches
}

// applyQuotes inserts every returned observation into its stock's record
// vector (deduping on timestamp), mirrors newly-inserted records onto the
// stream, and advances the stock's top-level snapshot when the observation
// is the latest seen.
func (m *Monitor) applyQuotes(quotes []marketdata.RealtimeQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range quotes {
		idx, ok := m.index[domain.HashSymbol(q.Code)]
		if !ok {
			continue
		}
		stock := m.stocks[idx]

		rec := domain.RealtimeRecord{Timestamp: q.Timestamp, Price: q.Price, Volume: q.Volume}
		if !m.insertRecord(stock, rec) {
			continue
		}

		if err := m.stream.Append(NewRecord(q.Code, q.Timestamp, q.Price, q.Volume)); err != nil {
			m.log.Warn().Err(err).Str("code", q.Code).Msg("failed to append real-time record to stream")
		}

		if q.Timestamp >= stock.Timestamp {
			stock.Timestamp = q.Timestamp
			stock.Price = q.Price
			stock.Volume = q.Volume
		}

		if m.eventsM != nil {
			m.eventsM.Emit("realtimestream", &events.RealtimeRecordAppendedData{
				CodeSymbol: q.Code,
				Timestamp:  q.Timestamp,
				Price:      q.Price,
				Volume:     q.Volume,
			})
		}
	}
}
