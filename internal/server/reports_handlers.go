package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockworks/workbench/internal/reports"
)

// ReportsHandlers exposes CRUD over the named report store.
type ReportsHandlers struct {
	s *Server
}

// HandleList handles GET /api/reports.
func (h *ReportsHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	h.s.writeJSON(w, http.StatusOK, h.s.cfg.Reports.All())
}

// HandleGet handles GET /api/reports/{name}.
func (h *ReportsHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rep, ok := h.s.cfg.Reports.FindNoCase(name)
	if !ok {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	h.s.writeJSON(w, http.StatusOK, rep)
}

// HandlePut handles PUT /api/reports/{name}: replace (or create) the named
// report with the request body's titles.
func (h *ReportsHandlers) HandlePut(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var rep reports.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rep.Name = name
	h.s.cfg.Reports.Put(&rep)
	if err := h.s.cfg.Reports.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.s.writeJSON(w, http.StatusOK, &rep)
}

// HandleDelete handles DELETE /api/reports/{name}.
func (h *ReportsHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.s.cfg.Reports.Delete(name)
	if err := h.s.cfg.Reports.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
