// settings.go: обработчики /api/v1/settings, /api/v1/audit-logs и /api/v1/invite.
package handlers

import (
	"net/http"

	"github.com/bigkaa/eventgate/internal/api/middleware"
	"github.com/bigkaa/eventgate/internal/service"
)

// GetSettings: GET /api/v1/settings (любой сотрудник).
func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings.Get(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSettings(s))
}

// UpdateSettings: PUT /api/v1/settings (ADMIN).
// Поля, отсутствующие в теле, не меняются.
func (h *APIHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var upd service.SettingsUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	s, err := h.svc.Settings.Update(r.Context(), &upd, middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSettings(s))
}

// ListAuditLogs: GET /api/v1/audit-logs?entity=&action=&userId=&page=&limit=.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := service.AuditQuery{Page: 1, Limit: 50}
	query := r.URL.Query()
	if !bindQuery(w, query, "entity", &q.Entity) ||
		!bindQuery(w, query, "action", &q.Action) ||
		!bindQuery(w, query, "userId", &q.UserID) ||
		!bindQuery(w, query, "page", &q.Page) ||
		!bindQuery(w, query, "limit", &q.Limit) {
		return
	}

	page, err := h.svc.Audit.List(r.Context(), q)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAuditPage(page))
}

// SendInvite: POST /api/v1/invite (ADMIN).
func (h *APIHandler) SendInvite(w http.ResponseWriter, r *http.Request) {
	var req service.InviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.Invite.Send(r.Context(), &req, middleware.PrincipalFromContext(r.Context())); err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Приглашение отправлено"})
}
