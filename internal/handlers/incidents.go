package handlers

import (
	"net/http"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/filter"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
)

var incidentSortColumns = map[string]bool{
	"name":        true,
	"title":       true,
	"status":      true,
	"reported_at": true,
	"closed_at":   true,
	"total_cost":  true,
	"created_at":  true,
}

func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	p := api.ParsePagination(r)

	base := h.db.Model(&database.Incident{}).Where("project_id = ?", project.ID)
	if status := r.URL.Query().Get("status"); status != "" {
		base = base.Where("status = ?", status)
	}
	base, err = h.filterQuery(r, base, &database.Incident{}, filter.IncidentSchema)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var incidents []database.Incident
	if err := p.Apply(base, incidentSortColumns).Find(&incidents).Error; err != nil {
		api.RespondServiceError(w, err)
		return
	}

	items := make([]api.IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = api.IncidentToListItem(inc, h.commanderEmail(&incidents[i]))
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

func (h *APIHandler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var req api.CreateIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	inc, err := h.incidents.Create(r.Context(), lifecycle.IncidentCreate{
		ProjectID:      project.ID,
		Title:          req.Title,
		Description:    req.Description,
		Visibility:     database.IncidentVisibility(req.Visibility),
		TypeID:         req.IncidentTypeID,
		PriorityID:     req.IncidentPriorityID,
		SeverityID:     req.IncidentSeverityID,
		ReporterEmail:  actor(r),
		CommanderEmail: req.CommanderEmail,
		TagIDs:         req.TagIDs,
	})
	if err != nil {
		if inc != nil {
			// Row persisted but provisioning failed; surface the partial
			// incident so the client can retry.
			api.RespondJSON(w, http.StatusAccepted, inc)
			return
		}
		api.RespondServiceError(w, err)
		return
	}
	h.timeline.BroadcastIncident(inc.ID, "incident_created")
	api.RespondJSON(w, http.StatusCreated, inc)
}

func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	inc, err := h.incidents.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, inc.ProjectID, project.ID) {
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

func (h *APIHandler) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	existing, err := h.incidents.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, existing.ProjectID, project.ID) {
		return
	}

	var req api.UpdateIncidentRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	patch := lifecycle.IncidentPatch{
		Title:          req.Title,
		Description:    req.Description,
		TypeID:         req.IncidentTypeID,
		PriorityID:     req.IncidentPriorityID,
		SeverityID:     req.IncidentSeverityID,
		TagIDs:         req.TagIDs,
		CommanderEmail: req.CommanderEmail,
	}
	if req.Visibility != nil {
		v := database.IncidentVisibility(*req.Visibility)
		patch.Visibility = &v
	}
	if req.Status != nil {
		st := database.IncidentStatus(*req.Status)
		patch.Status = &st
	}

	inc, err := h.incidents.Update(r.Context(), id, patch, actor(r))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	h.timeline.BroadcastIncident(inc.ID, "incident_updated")
	api.RespondJSON(w, http.StatusOK, inc)
}

func (h *APIHandler) handleIncidentTimeline(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	inc, err := h.incidents.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, inc.ProjectID, project.ID) {
		return
	}
	timeline, err := h.events.ListIncident(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, timeline)
}

func (h *APIHandler) handleIncidentParticipants(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	inc, err := h.incidents.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, inc.ProjectID, project.ID) {
		return
	}
	participants, err := h.participants.List(&id, nil)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, participants)
}

func (h *APIHandler) handleCloseIncident(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	existing, err := h.incidents.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, existing.ProjectID, project.ID) {
		return
	}
	inc, err := h.incidents.Transition(r.Context(), id, database.IncidentStatusClosed, actor(r))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	h.timeline.BroadcastIncident(inc.ID, "incident_closed")
	api.RespondJSON(w, http.StatusOK, inc)
}

func (h *APIHandler) handleReprovisionIncident(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	inc, err := h.incidents.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, inc.ProjectID, project.ID) {
		return
	}
	if err := h.incidents.Reprovision(r.Context(), id); err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondNoContent(w)
}

func (h *APIHandler) commanderEmail(inc *database.Incident) string {
	if inc.CommanderID == nil {
		return ""
	}
	var p database.Participant
	if err := h.db.Preload("Individual").First(&p, *inc.CommanderID).Error; err != nil {
		return ""
	}
	return p.Individual.Email
}
