// Package stockdb is the append-only stock store: a growable slot array
// plus a hash index mapping a handle's id to its slot. Slot 0 is reserved
// so a zero Handle never aliases a real stock.
package stockdb

import (
	"strings"
	"sync"

	"github.com/stockworks/workbench/internal/domain"
)

const initialCapacity = 256

// DB holds every stock known to the process. Stocks are created on first
// handle request and never removed during a session.
type DB struct {
	mu       sync.RWMutex
	slots    []*domain.Stock
	index    map[uint64]int
	capacity int
	growths  int
}

// New creates an empty DB with slot 0 reserved as the sentinel.
func New() *DB {
	return &DB{
		slots:    make([]*domain.Stock, 1, initialCapacity),
		index:    make(map[uint64]int, initialCapacity),
		capacity: initialCapacity,
	}
}

// InitializeHandle interns symbol and computes its handle. It performs no
// I/O and touches no lock; the only failure is an empty symbol.
func (db *DB) InitializeHandle(symbol string) (domain.Handle, error) {
	if symbol == "" {
		return domain.Handle{}, domain.NewError("initialize_handle", domain.KindInvalidArgument, nil)
	}
	return domain.Handle{ID: domain.HashSymbol(symbol), CodeSymbol: symbol}, nil
}

// Ensure returns the stock slot for handle, inserting a fresh one if this
// is the first time the symbol has been seen. The fast path only takes the
// read lock; insertion takes the write lock and re-checks, since another
// goroutine may have inserted the same id in between.
func (db *DB) Ensure(handle domain.Handle) *domain.Stock {
	db.mu.RLock()
	if idx, ok := db.index[handle.ID]; ok {
		s := db.slots[idx]
		db.mu.RUnlock()
		return s
	}
	db.mu.RUnlock()

	db.mu.Lock()
	defer db.mu.Unlock()

	if idx, ok := db.index[handle.ID]; ok {
		return db.slots[idx]
	}

	if len(db.slots) >= db.capacity {
		db.grow()
	}

	stock := &domain.Stock{
		ID:         handle.ID,
		CodeSymbol: handle.CodeSymbol,
		Current:    domain.NewDayResult(),
	}
	db.index[handle.ID] = len(db.slots)
	db.slots = append(db.slots, stock)
	return stock
}

// grow doubles capacity. Must be called with the write lock held. The
// existing slots are copied into a new backing array rather than relying
// on append's own growth so that Growths() reports exactly one event per
// doubling, matching the "exactly one growth event" property.
func (db *DB) grow() {
	db.capacity *= 2
	next := make([]*domain.Stock, len(db.slots), db.capacity)
	copy(next, db.slots)
	db.slots = next
	db.growths++
}

// Get returns the stock for handle, or the all-NaN sentinel if the handle
// is invalid or unknown. It never returns nil.
func (db *DB) Get(handle domain.Handle) *domain.Stock {
	if !handle.Valid() {
		return domain.NilStock()
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, ok := db.index[handle.ID]
	if !ok {
		return domain.NilStock()
	}
	return db.slots[idx]
}

// Mutate runs fn against the stock behind handle while holding the read
// lock. This mirrors the spec's "field writes are coarsely atomic under
// the read lock" rule: concurrent field mutation of different slots (or
// different levels of the same slot) never contends with a second writer,
// because fetch-level dedup guarantees at most one writer per (stock,
// level) pair; Mutate only has to keep a grow() from reslicing underfoot.
func (db *DB) Mutate(handle domain.Handle, fn func(*domain.Stock)) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, ok := db.index[handle.ID]
	if !ok {
		return domain.NewError("mutate", domain.KindInvalidHandle, nil)
	}
	fn(db.slots[idx])
	return nil
}

// Len returns the number of stocks stored, excluding the reserved slot 0.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.slots) - 1
}

// Growths returns the number of capacity-doubling events since New.
func (db *DB) Growths() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.growths
}

// Request is the convenience composition of InitializeHandle followed by
// Ensure: it always returns a valid handle backed by a slot, creating the
// slot on first sight of the symbol. It does not itself schedule any
// fetch; that's the resolver's job once it has the handle.
func (db *DB) Request(symbol string) (domain.Handle, error) {
	handle, err := db.InitializeHandle(symbol)
	if err != nil {
		return domain.Handle{}, err
	}
	db.Ensure(handle)
	return handle, nil
}

// ResolveSymbol normalizes a free-typed query (uppercasing and trimming)
// into a canonical handle. It is the one piece of the original's search
// module that touches the core; fuzzy matching and indexing stay out of
// scope.
func (db *DB) ResolveSymbol(query string) (domain.Handle, error) {
	return db.InitializeHandle(strings.ToUpper(strings.TrimSpace(query)))
}
