package server

import (
	"net/http"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stockworks/workbench/internal/scheduler"
)

// SystemHandlers exposes process/host resource usage and on-demand job
// triggers, replacing the teacher's broker/display status monitor with a
// status surface grounded in this workbench's own components.
type SystemHandlers struct {
	s *Server
}

type systemStatusResponse struct {
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	StockCount    int     `json:"stock_count"`
	AlertCount    int     `json:"alert_count"`
}

// HandleStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{
		Goroutines: runtime.NumGoroutine(),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
		resp.MemoryTotalMB = float64(vm.Total) / (1024 * 1024)
	}
	if h.s.cfg.DB != nil {
		resp.StockCount = h.s.cfg.DB.Len()
	}
	if h.s.cfg.Alerts != nil {
		resp.AlertCount = h.s.cfg.Alerts.Len()
	}
	h.s.writeJSON(w, http.StatusOK, resp)
}

// runNamedJob runs job synchronously through the scheduler. Callers must
// not pass a nil concrete pointer wrapped in the scheduler.Job interface —
// that produces a non-nil interface value this function can't detect as
// unconfigured — so HandleRunAlertsTick/HandleRunBackup check their
// concrete *cfg field for nil before calling this.
func (h *SystemHandlers) runNamedJob(w http.ResponseWriter, job scheduler.Job) {
	if err := h.s.cfg.Scheduler.RunNow(job); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.s.writeJSON(w, http.StatusOK, map[string]string{"job": job.Name(), "status": "ran"})
}

// HandleRunAlertsTick handles POST /api/system/jobs/alerts-tick.
func (h *SystemHandlers) HandleRunAlertsTick(w http.ResponseWriter, r *http.Request) {
	if h.s.cfg.AlertsEngine == nil {
		http.Error(w, "alerts engine is not configured", http.StatusServiceUnavailable)
		return
	}
	h.runNamedJob(w, h.s.cfg.AlertsEngine)
}

// HandleRunBackup handles POST /api/system/jobs/backup.
func (h *SystemHandlers) HandleRunBackup(w http.ResponseWriter, r *http.Request) {
	if h.s.cfg.Backup == nil {
		http.Error(w, "backup is not configured", http.StatusServiceUnavailable)
		return
	}
	h.runNamedJob(w, h.s.cfg.Backup)
}
