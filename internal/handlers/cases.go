package handlers

import (
	"net/http"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/filter"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
)

var caseSortColumns = map[string]bool{
	"name":       true,
	"title":      true,
	"status":     true,
	"closed_at":  true,
	"created_at": true,
}

func (h *APIHandler) handleListCases(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	p := api.ParsePagination(r)

	base := h.db.Model(&database.Case{}).Where("project_id = ?", project.ID)
	if status := r.URL.Query().Get("status"); status != "" {
		base = base.Where("status = ?", status)
	}
	base, err = h.filterQuery(r, base, &database.Case{}, filter.CaseSchema)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var cases []database.Case
	if err := p.Apply(base, caseSortColumns).Find(&cases).Error; err != nil {
		api.RespondServiceError(w, err)
		return
	}

	items := make([]api.CaseListItem, len(cases))
	for i := range cases {
		items[i] = api.CaseToListItem(cases[i], h.assigneeEmail(&cases[i]))
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

func (h *APIHandler) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	project, err := h.projectFor(r)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	var req api.CreateCaseRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	cs, err := h.cases.Create(r.Context(), lifecycle.CaseCreate{
		ProjectID:     project.ID,
		Title:         req.Title,
		Description:   req.Description,
		TypeID:        req.CaseTypeID,
		PriorityID:    req.CasePriorityID,
		SeverityID:    req.CaseSeverityID,
		ReporterEmail: actor(r),
		AssigneeEmail: req.AssigneeEmail,
		TagIDs:        req.TagIDs,
	})
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	h.timeline.BroadcastCase(cs.ID, "case_created")
	api.RespondJSON(w, http.StatusCreated, cs)
}

func (h *APIHandler) handleGetCase(w http.ResponseWriter, r *http.Request) {
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
	cs, err := h.cases.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, cs.ProjectID, project.ID) {
		return
	}
	api.RespondJSON(w, http.StatusOK, cs)
}

func (h *APIHandler) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
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
	existing, err := h.cases.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, existing.ProjectID, project.ID) {
		return
	}

	var req api.UpdateCaseRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	cs, err := h.cases.Update(r.Context(), id, lifecycle.CasePatch{
		Title:         req.Title,
		Description:   req.Description,
		TypeID:        req.CaseTypeID,
		PriorityID:    req.CasePriorityID,
		SeverityID:    req.CaseSeverityID,
		AssigneeEmail: req.AssigneeEmail,
		TagIDs:        req.TagIDs,
	}, actor(r))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if req.Status != nil {
		cs, err = h.cases.Transition(r.Context(), id, database.CaseStatus(*req.Status), actor(r))
		if err != nil {
			api.RespondServiceError(w, err)
			return
		}
	}
	h.timeline.BroadcastCase(cs.ID, "case_updated")
	api.RespondJSON(w, http.StatusOK, cs)
}

func (h *APIHandler) handleEscalateCase(w http.ResponseWriter, r *http.Request) {
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
	cs, err := h.cases.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, cs.ProjectID, project.ID) {
		return
	}
	inc, err := h.cases.Escalate(r.Context(), id, actor(r))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	h.timeline.BroadcastCase(id, "case_escalated")
	api.RespondJSON(w, http.StatusCreated, inc)
}

func (h *APIHandler) handleCloseCase(w http.ResponseWriter, r *http.Request) {
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
	existing, err := h.cases.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, existing.ProjectID, project.ID) {
		return
	}

	var req api.CloseCaseRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	cs, err := h.cases.Close(r.Context(), id, database.CaseResolution(req.Resolution), req.Reason, actor(r))
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	h.timeline.BroadcastCase(cs.ID, "case_closed")
	api.RespondJSON(w, http.StatusOK, cs)
}

func (h *APIHandler) handleCaseTimeline(w http.ResponseWriter, r *http.Request) {
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
	cs, err := h.cases.Get(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	if !checkSubjectProject(w, cs.ProjectID, project.ID) {
		return
	}
	timeline, err := h.events.ListCase(id)
	if err != nil {
		api.RespondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, timeline)
}

func (h *APIHandler) assigneeEmail(cs *database.Case) string {
	if cs.AssigneeID == nil {
		return ""
	}
	var p database.Participant
	if err := h.db.Preload("Individual").First(&p, *cs.AssigneeID).Error; err != nil {
		return ""
	}
	return p.Individual.Email
}
