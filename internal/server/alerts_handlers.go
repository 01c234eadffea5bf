package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockworks/workbench/internal/domain"
)

// AlertsHandlers exposes the alert store and the price-watch convenience
// endpoints over HTTP.
type AlertsHandlers struct {
	s *Server
}

// HandleList handles GET /api/alerts.
func (h *AlertsHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	h.s.writeJSON(w, http.StatusOK, h.s.cfg.Alerts.All())
}

type createAlertRequest struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Expression    string  `json:"expression"`
	FrequencySecs float64 `json:"frequency_secs"`
}

// HandleCreate handles POST /api/alerts: add a free-form expression alert.
func (h *AlertsHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Expression == "" {
		http.Error(w, "expression must not be empty", http.StatusBadRequest)
		return
	}
	a := &domain.AlertEvaluator{
		Title:         req.Title,
		Description:   req.Description,
		Expression:    req.Expression,
		FrequencySecs: req.FrequencySecs,
	}
	h.s.cfg.Alerts.Insert(a)
	if err := h.s.cfg.Alerts.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.s.writeJSON(w, http.StatusCreated, a)
}

// HandleDelete handles DELETE /api/alerts/{index}, addressing an alert by
// its position in the store's ordered list.
func (h *AlertsHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	h.s.cfg.Alerts.DeleteAt(idx)
	if err := h.s.cfg.Alerts.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type priceWatchRequest struct {
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

// HandleIncrease handles POST /api/alerts/price-increase.
func (h *AlertsHandlers) HandleIncrease(w http.ResponseWriter, r *http.Request) {
	h.handlePriceWatch(w, r, h.s.cfg.AlertsEngine.AddPriceIncrease)
}

// HandleDecrease handles POST /api/alerts/price-decrease.
func (h *AlertsHandlers) HandleDecrease(w http.ResponseWriter, r *http.Request) {
	h.handlePriceWatch(w, r, h.s.cfg.AlertsEngine.AddPriceDecrease)
}

func (h *AlertsHandlers) handlePriceWatch(
	w http.ResponseWriter,
	r *http.Request,
	add func(ctx context.Context, code string, price float64) (*domain.AlertEvaluator, error),
) {
	var req priceWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code must not be empty", http.StatusBadRequest)
		return
	}
	a, err := add(r.Context(), req.Code, req.Price)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.s.writeJSON(w, http.StatusOK, a)
}
