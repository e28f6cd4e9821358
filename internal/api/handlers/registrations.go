// registrations.go: обработчики /api/v1/registrations (сотрудники).
// Список, карточка, изменение статуса, удаление, выгрузка и статистика.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/eventgate/internal/api/middleware"
	"github.com/bigkaa/eventgate/internal/service"
)

// ListRegistrations: GET /api/v1/registrations.
func (h *APIHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	q := service.DefaultListQuery()
	query := r.URL.Query()

	var date openapi_types.Date
	if !bindQuery(w, query, "query", &q.Query) ||
		!bindQuery(w, query, "status", &q.Status) ||
		!bindQuery(w, query, "ageGroup", &q.AgeGroup) ||
		!bindQuery(w, query, "date", &date) ||
		!bindQuery(w, query, "page", &q.Page) ||
		!bindQuery(w, query, "limit", &q.Limit) ||
		!bindQuery(w, query, "sortBy", &q.SortBy) ||
		!bindQuery(w, query, "sortOrder", &q.SortOrder) {
		return
	}
	if !date.IsZero() {
		q.Date = date.Format(openapi_types.DateFormat)
	}

	page, err := h.svc.Registrations.List(r.Context(), q)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	resp := registrationListResponse{
		Items: make([]registrationResponse, len(page.Items)),
		Pagination: pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	}
	for i, reg := range page.Items {
		resp.Items[i] = mapRegistration(reg)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRegistration: GET /api/v1/registrations/{id}.
func (h *APIHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Registrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRegistration(reg))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateRegistration: PATCH /api/v1/registrations/{id}.
// Общее изменение статуса; CHECKED_IN фиксирует время и сотрудника.
func (h *APIHandler) UpdateRegistration(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reg, err := h.svc.Registrations.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status,
		middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRegistration(reg))
}

// DeleteRegistration: DELETE /api/v1/registrations/{id}.
func (h *APIHandler) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Registrations.Delete(r.Context(), chi.URLParam(r, "id"), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportRegistrations: GET /api/v1/registrations/export?format=xlsx|csv.
func (h *APIHandler) ExportRegistrations(w http.ResponseWriter, r *http.Request) {
	var req service.ExportRequest
	query := r.URL.Query()
	if !bindQuery(w, query, "format", &req.Format) ||
		!bindQuery(w, query, "status", &req.Status) ||
		!bindQuery(w, query, "ageGroup", &req.AgeGroup) {
		return
	}

	file, err := h.svc.Export.Export(r.Context(), req, middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("X-Export-Count", strconv.Itoa(file.Count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// DashboardStats: GET /api/v1/dashboard/stats и GET /api/v1/registrations/stats.
func (h *APIHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats.Dashboard(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDashboard(stats))
}
