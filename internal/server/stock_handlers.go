// Package server provides the HTTP server and routing for the workbench.
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stockworks/workbench/internal/domain"
)

// StockHandlers exposes the stock database and resolution dispatcher over
// HTTP: resolve a symbol to whatever FetchLevel bits a client asks for, then
// read back the resulting Stock.
type StockHandlers struct {
	s *Server
}

func levelsFromQuery(raw string) domain.FetchLevel {
	if raw == "" {
		return domain.LevelRealtime | domain.LevelFundamentals
	}
	names := map[string]domain.FetchLevel{
		"REALTIME":                domain.LevelRealtime,
		"FUNDAMENTALS":            domain.LevelFundamentals,
		"EOD":                     domain.LevelEOD,
		"TECHNICAL_EOD":           domain.LevelTechnicalEOD,
		"TECHNICAL_INDEXED_PRICE": domain.LevelTechnicalIndexedPrice,
		"TECHNICAL_SMA":           domain.LevelTechnicalSMA,
		"TECHNICAL_EMA":           domain.LevelTechnicalEMA,
		"TECHNICAL_WMA":           domain.LevelTechnicalWMA,
		"TECHNICAL_BBANDS":        domain.LevelTechnicalBBANDS,
		"TECHNICAL_SAR":           domain.LevelTechnicalSAR,
		"TECHNICAL_SLOPE":         domain.LevelTechnicalSlope,
		"TECHNICAL_CCI":           domain.LevelTechnicalCCI,
		"TECHNICAL_CHARTS":        domain.LevelTechnicalCharts,
	}
	var mask domain.FetchLevel
	for _, name := range strings.Split(raw, ",") {
		if bit, ok := names[strings.ToUpper(strings.TrimSpace(name))]; ok {
			mask |= bit
		}
	}
	return mask
}

// HandleResolve handles POST /api/stocks/{code}/resolve?levels=REALTIME,EOD:
// it requests the given levels (defaulting to REALTIME|FUNDAMENTALS) and
// returns the stock's current state, which may still be mid-resolution.
func (h *StockHandlers) HandleResolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	levels := levelsFromQuery(r.URL.Query().Get("levels"))

	handle, status, err := h.s.cfg.Resolver.Request(r.Context(), code, levels)
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	stock := h.s.cfg.DB.Get(handle)
	h.s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status.String(),
		"stock":  stock,
	})
}

// HandleGet handles GET /api/stocks/{code}: a read-only lookup of whatever
// has already been resolved, without requesting any new levels.
func (h *StockHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	handle, err := h.s.cfg.DB.ResolveSymbol(code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stock := h.s.cfg.DB.Get(handle)
	if stock.ID == 0 {
		http.Error(w, "stock has not been requested yet", http.StatusNotFound)
		return
	}
	h.s.writeJSON(w, http.StatusOK, stock)
}

func (h *StockHandlers) writeResolveError(w http.ResponseWriter, err error) {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case domain.KindInvalidHandle:
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case domain.KindPoisoned:
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// realtimeSnapshot is the read-only view served for a symbol already under
// real-time monitoring.
type realtimeSnapshot struct {
	Code      string                  `json:"code"`
	Timestamp int64                   `json:"timestamp"`
	Price     float64                 `json:"price"`
	Volume    float64                 `json:"volume"`
	Records   []domain.RealtimeRecord `json:"records,omitempty"`
}

// HandleRealtime handles GET /api/stocks/{code}/realtime: the monitor's
// current view of the symbol, registering it if it isn't tracked yet.
func (h *StockHandlers) HandleRealtime(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if h.s.cfg.Realtime == nil {
		http.Error(w, "realtime monitoring is disabled", http.StatusServiceUnavailable)
		return
	}
	rs, ok := h.s.cfg.Realtime.Get(code)
	if !ok {
		rs = h.s.cfg.Realtime.Register(code, nil)
	}
	h.s.writeJSON(w, http.StatusOK, realtimeSnapshot{
		Code:      rs.Code,
		Timestamp: rs.Timestamp,
		Price:     rs.Price,
		Volume:    rs.Volume,
		Records:   rs.Records,
	})
}
