// users.go: обработчики /api/v1/users (только ADMIN) и /api/v1/me.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/eventgate/internal/api/middleware"
	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/service"
)

type userListResponse struct {
	Items []userResponse `json:"items"`
	Total int            `json:"total"`
}

// ListUsers: GET /api/v1/users (с количеством отмеченных проходов).
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users.List(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}

	resp := userListResponse{Items: make([]userResponse, len(users)), Total: len(users)}
	for i, u := range users {
		resp.Items[i] = mapUser(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUser: GET /api/v1/users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(u))
}

// CreateUser: POST /api/v1/users.
// Сотрудник привязывается к IdP при первом входе по email.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.svc.Users.Create(r.Context(), &req, middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapUser(u))
}

// UpdateUser: PATCH /api/v1/users/{id}.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.svc.Users.Update(r.Context(), chi.URLParam(r, "id"), &req, middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.forgetPrincipal(u)
	writeJSON(w, http.StatusOK, mapUser(u))
}

// DeactivateUser: DELETE /api/v1/users/{id}. Запись не удаляется.
func (h *APIHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Users.Deactivate(r.Context(), id, middleware.PrincipalFromContext(r.Context())); err != nil {
		h.serviceError(w, err)
		return
	}

	// Отключённый сотрудник теряет доступ сразу, а не по истечении TTL кэша
	if u, err := h.svc.Users.Get(r.Context(), id); err == nil {
		h.forgetPrincipal(u)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me: GET /api/v1/me. Текущий сотрудник.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mapUser(middleware.PrincipalFromContext(r.Context())))
}

func (h *APIHandler) forgetPrincipal(u *model.User) {
	if h.svc.Principals != nil && u.Subject != nil {
		h.svc.Principals.Forget(*u.Subject)
	}
}
