// Package patterns holds the per-stock chart layout a user has saved for a
// symbol: which extra indicators are overlaid, axis orientation, the
// zoom/price window, free-text notes and a small bank of toggleable checks.
// A pattern consumes resolved stock data for its own rendering but carries
// no resolution logic of its own — it is a sibling of reports, not part of
// the core.
package patterns

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PriceLimits pins the chart's visible price/zoom window.
type PriceLimits struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
}

// Pattern is one saved chart layout, keyed by stock code in the Store.
type Pattern struct {
	Code          string      `json:"code"`
	Opened        bool        `json:"opened"`
	ExtraCharts   []string    `json:"extra_charts"`
	ShowLimits    bool        `json:"show_limits"`
	XAxisInverted bool        `json:"x_axis_inverted"`
	RangeAcc      float64     `json:"range_acc"`
	GraphType     string      `json:"graph_type"`
	Notes         string      `json:"notes"`
	PriceLimits   PriceLimits `json:"price_limits"`
	Checks        [8]bool     `json:"checks"`
}

// Store is a JSON-file-backed map of stock code -> Pattern, the same shape
// reports.Store uses for its own named collections.
type Store struct {
	mu       sync.RWMutex
	path     string
	patterns map[string]*Pattern
}

// Open loads path if it exists; a missing file starts an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, patterns: make(map[string]*Pattern)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("patterns: open %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var raw map[string]*Pattern
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("patterns: decode %s: %w", path, err)
	}
	for code, p := range raw {
		s.patterns[strings.ToUpper(code)] = p
	}
	return s, nil
}

// Save writes the whole store back to path.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.patterns, "", "  ")
	if err != nil {
		return fmt.Errorf("patterns: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("patterns: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("patterns: write %s: %w", s.path, err)
	}
	return nil
}

// Get returns the pattern saved for code, if any.
func (s *Store) Get(code string) (*Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[strings.ToUpper(code)]
	return p, ok
}

// Put inserts or replaces the pattern for p.Code.
func (s *Store) Put(p *Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[strings.ToUpper(p.Code)] = p
}

// Delete removes the saved pattern for code, if any. Idempotent.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, strings.ToUpper(code))
}

// All returns every saved pattern, in no particular order.
func (s *Store) All() []*Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out
}

// NewDefault returns the zero-value layout a stock gets the first time its
// chart is opened: no extra overlays, limits hidden, line chart, no checks.
func NewDefault(code string) *Pattern {
	return &Pattern{
		Code:      strings.ToUpper(code),
		GraphType: "line",
	}
}
