package handlers

import (
	"net/http"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/filter"
)

var signalInstanceSortColumns = map[string]bool{
	"created_at":  true,
	"signal_id":   true,
	"fingerprint": true,
}

// handleIngestSignal accepts a raw detection payload and queues it. A 202
// means accepted for processing, not that a case was opened.
func (h *APIHandler) handleIngestSignal(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var payload api.IngestSignalRequest
	if err := api.DecodeJSON(r, &payload); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload) == 0 {
		api.RespondError(w, http.StatusBadRequest, "payload is empty")
		return
	}
	if err := h.queue.Enqueue(project.ID, database.JSONB(payload)); err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *APIHandler) handleListSignalInstances(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	p := api.ParsePagination(r)

	base := h.db.Model(&database.SignalInstance{}).Where("project_id = ?", project.ID)
	if v := r.URL.Query().Get("signal_id"); v != "" {
		base = base.Where("signal_id = ?", v)
	}
	if v := r.URL.Query().Get("filter_action"); v != "" {
		base = base.Where("filter_action = ?", v)
	}
	base, err = h.filterQuery(r, base, &database.SignalInstance{}, filter.SignalInstanceSchema)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var instances []database.SignalInstance
	if err := p.Apply(base, signalInstanceSortColumns).Find(&instances).Error; err != nil {
		api.RespondServiceError(w, err)
		return
	}

	items := make([]api.SignalInstanceListItem, len(instances))
	for i, si := range instances {
		items[i] = api.SignalInstanceToListItem(si)
	}
	api.RespondJSON(w, http.StatusOK, api.PaginatedResponse{
		Data: items,
		Pagination: api.PaginationMeta{
			Page:       p.Page,
			PerPage:    p.PerPage,
			Total:      total,
			TotalPages: p.TotalPages(total),
		},
	})
}
