// Package resolver is the resolution dispatcher: it turns a requested
// FetchLevel mask into a set of concurrent provider calls, writes results
// onto the stock's slot through stockdb.Mutate, and reports completion and
// failure on the event bus. It owns no HTTP or storage logic of its own
// (that lives in marketdata and stockdb); it is purely the ingestion rules
// and the dedup/poisoning bookkeeping around them, in the shape of
// internal/work/processor.go's goroutine-per-job, context.WithTimeout
// idiom, adapted from a job queue to a (stock, level) dispatch table.
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/events"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/stockdb"
	"github.com/stockworks/workbench/internal/utils"
)

// Status is the outcome of a Resolve call.
type Status int

const (
	StatusOk Status = iota
	StatusResolving
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusResolving:
		return "resolving"
	default:
		return "error"
	}
}

const (
	fetchTimeout     = 15 * time.Second
	levelWaitTimeout = 60 * time.Second
	levelWaitPoll    = 100 * time.Millisecond
)

// Dispatcher resolves FetchLevel masks against a stock database by calling
// out to the market-data provider (or, for the technical-indicator levels,
// computing locally from already-resolved history).
type Dispatcher struct {
	db     *stockdb.DB
	market *marketdata.Client
	events *events.Manager
	log    zerolog.Logger

	// dispatchMu serializes the claim-then-mark-fetching decision across all
	// stocks. It is coarse (one lock for the whole database rather than one
	// per stock) but the claim itself is a handful of map/bitset reads, so
	// the contention window is short; this mirrors the rest of the database
	// reaching for one RWMutex rather than a striped lock.
	dispatchMu sync.Mutex
}

// New creates a Dispatcher over db, issuing provider calls through market
// and reporting through mgr. mgr may be nil to disable event emission.
func New(db *stockdb.DB, market *marketdata.Client, mgr *events.Manager, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		market: market,
		events: mgr,
		log:    log.With().Str("component", "resolver").Logger(),
	}
}

// Request interns symbol into the database and resolves levels against it,
// composing stockdb.Request with Resolve the way the original request()
// operation does.
func (d *Dispatcher) Request(ctx context.Context, symbol string, levels domain.FetchLevel) (domain.Handle, Status, error) {
	handle, err := d.db.Request(symbol)
	if err != nil {
		return domain.Handle{}, StatusError, err
	}
	status, err := d.Resolve(ctx, handle, levels)
	return handle, status, err
}

// RequestAll interns and resolves levels against every symbol in symbols,
// the bulk handle warm-up the original's bulk_initialize_* operations
// perform over an exchange's full symbol list.
func (d *Dispatcher) RequestAll(ctx context.Context, symbols []string, levels domain.FetchLevel) ([]domain.Handle, error) {
	handles := make([]domain.Handle, 0, len(symbols))
	for _, symbol := range symbols {
		handle, _, err := d.Request(ctx, symbol, levels)
		if err != nil {
			return handles, err
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// Resolve claims every bit of levels not already fetching or resolved,
// dispatches one goroutine per claimed bit, and reports whether the mask
// was already fully satisfied, is now being worked on, or the handle was
// invalid/poisoned.
func (d *Dispatcher) Resolve(ctx context.Context, handle domain.Handle, levels domain.FetchLevel) (Status, error) {
	if !handle.Valid() {
		return StatusError, domain.NewError("resolve", domain.KindInvalidHandle, nil)
	}

	stock := d.db.Get(handle)
	if stock.Poisoned() {
		return StatusError, domain.NewError("resolve", domain.KindPoisoned, nil)
	}

	claimed, err := d.claim(handle, levels)
	if err != nil {
		return StatusError, err
	}
	if claimed == domain.LevelNone {
		if stock.Resolved(levels) {
			return StatusOk, nil
		}
		return StatusResolving, nil
	}

	for _, level := range domain.AllLevels() {
		if claimed.Has(level) {
			level := level
			go d.dispatch(ctx, handle, level)
		}
	}
	return StatusResolving, nil
}

// claim atomically marks every bit of requested not already in flight or
// resolved as fetching, returning just the bits it claimed.
func (d *Dispatcher) claim(handle domain.Handle, requested domain.FetchLevel) (domain.FetchLevel, error) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	var claimed domain.FetchLevel
	err := d.db.Mutate(handle, func(s *domain.Stock) {
		pending := requested &^ (s.FetchLevel | s.ResolvedLevel)
		if pending == domain.LevelNone {
			return
		}
		s.MarkFetching(pending, time.Now().UnixNano())
		claimed = pending
	})
	return claimed, err
}

// dispatch runs the ingestion rule for one (handle, level) pair and records
// the outcome. It always runs in its own goroutine; levels.
func (d *Dispatcher) dispatch(ctx context.Context, handle domain.Handle, level domain.FetchLevel) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	err := d.ingest(ctx, handle, level)
	if err == nil {
		d.onResolved(handle, level)
		return
	}
	d.onFailed(handle, level, err)
}

// ingest routes level to its ingestion rule (§4.1).
func (d *Dispatcher) ingest(ctx context.Context, handle domain.Handle, level domain.FetchLevel) error {
	switch level {
	case domain.LevelRealtime:
		return d.ingestRealtime(ctx, handle)
	case domain.LevelFundamentals:
		return d.ingestFundamentals(ctx, handle)
	case domain.LevelEOD:
		return d.ingestEOD(ctx, handle)
	case domain.LevelTechnicalEOD:
		return d.ingestTechnicalEOD(ctx, handle)
	case domain.LevelTechnicalIndexedPrice:
		return d.ingestTechnicalIndexedPrice(ctx, handle)
	case domain.LevelTechnicalSMA, domain.LevelTechnicalEMA, domain.LevelTechnicalWMA,
		domain.LevelTechnicalBBANDS, domain.LevelTechnicalSAR, domain.LevelTechnicalSlope,
		domain.LevelTechnicalCCI:
		return d.ingestIndicator(ctx, handle, level)
	default:
		return domain.NewError("ingest", domain.KindInvalidArgument, nil)
	}
}

// onResolved moves level from fetching to resolved and emits StockResolved.
//
// Mutate only holds the db's read lock, so two dispatch goroutines for
// different levels of the same stock can call this concurrently; without
// dispatchMu their FetchLevel/ResolvedLevel read-modify-writes race and can
// lose an update. claim serializes its own bitset transition the same way.
func (d *Dispatcher) onResolved(handle domain.Handle, level domain.FetchLevel) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	var resolved domain.FetchLevel
	_ = d.db.Mutate(handle, func(s *domain.Stock) {
		s.MarkResolved(level, time.Now().UnixNano())
		resolved = s.ResolvedLevel
	})
	if d.events != nil {
		d.events.Emit("resolver", &events.StockResolvedData{
			CodeSymbol: handle.CodeSymbol,
			Level:      uint32(level),
			Resolved:   uint32(resolved),
		})
	}
}

// onFailed records a failed fetch. A DecodeError (the response round-tripped
// fine but didn't parse into the expected shape) marks the level resolved
// anyway so a permanently malformed field can't loop forever; any other
// error bumps fetch_errors and leaves the level pending for the next
// resolve call to retry, poisoning the stock at the threshold.
func (d *Dispatcher) onFailed(handle domain.Handle, level domain.FetchLevel, cause error) {
	var decodeErr *marketdata.DecodeError
	if errors.As(cause, &decodeErr) {
		d.log.Warn().Str("level", level.String()).Str("symbol", handle.CodeSymbol).Err(cause).
			Msg("response parse failed, marking level resolved to avoid a retry loop")
		d.onResolved(handle, level)
		return
	}

	var fetchErrors uint32
	var poisoned bool
	d.dispatchMu.Lock()
	_ = d.db.Mutate(handle, func(s *domain.Stock) {
		s.FetchLevel &^= level
		s.FetchErrors++
		fetchErrors = s.FetchErrors
		poisoned = s.Poisoned()
	})
	d.dispatchMu.Unlock()

	d.log.Warn().Str("level", level.String()).Str("symbol", handle.CodeSymbol).
		Uint32("fetch_errors", fetchErrors).Bool("poisoned", poisoned).Err(cause).Msg("fetch failed")

	if d.events != nil {
		d.events.Emit("resolver", &events.ResolutionFailedData{
			CodeSymbol:  handle.CodeSymbol,
			Level:       uint32(level),
			Error:       cause.Error(),
			FetchErrors: fetchErrors,
			Poisoned:    poisoned,
		})
	}
}

// waitForLevel spin-waits, capped at levelWaitTimeout, for any bit of mask
// to become resolved. TECHNICAL_INDEXED_PRICE and the locally-computed
// indicator levels all depend on EOD or TECHNICAL_EOD history existing
// first, and the two can race in: whichever finishes first satisfies mask.
func (d *Dispatcher) waitForLevel(ctx context.Context, handle domain.Handle, mask domain.FetchLevel) error {
	timer := utils.NewTimer("resolver.wait_for_level", d.log)
	defer timer.Stop()

	deadline := time.Now().Add(levelWaitTimeout)
	ticker := time.NewTicker(levelWaitPoll)
	defer ticker.Stop()

	for {
		if d.db.Get(handle).ResolvedLevel&mask != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			d.log.Warn().Str("symbol", handle.CodeSymbol).Str("waiting_on", mask.String()).
				Msg("PERFORMANCE: wait for dependent level exceeded 60s budget")
			return domain.NewError("wait_for_level", domain.KindEvaluationTimeout, nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
