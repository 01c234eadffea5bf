package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockworks/workbench/internal/patterns"
)

// PatternsHandlers exposes CRUD over the per-stock saved chart layout.
type PatternsHandlers struct {
	s *Server
}

// HandleList handles GET /api/patterns.
func (h *PatternsHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	h.s.writeJSON(w, http.StatusOK, h.s.cfg.Patterns.All())
}

// HandleGet handles GET /api/patterns/{code}, returning the default layout
// if the stock has never had one saved.
func (h *PatternsHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	p, ok := h.s.cfg.Patterns.Get(code)
	if !ok {
		p = patterns.NewDefault(code)
	}
	h.s.writeJSON(w, http.StatusOK, p)
}

// HandlePut handles PUT /api/patterns/{code}.
func (h *PatternsHandlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var p patterns.Pattern
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p.Code = code
	h.s.cfg.Patterns.Put(&p)
	if err := h.s.cfg.Patterns.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.s.writeJSON(w, http.StatusOK, &p)
}

// HandleDelete handles DELETE /api/patterns/{code}.
func (h *PatternsHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.s.cfg.Patterns.Delete(code)
	if err := h.s.cfg.Patterns.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
