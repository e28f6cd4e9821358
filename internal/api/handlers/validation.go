// Обработчики пропускного пункта: отметка прохода по QR-коду
// и ручной поиск регистрации.
package handlers

import (
	"net/http"

	"github.com/bigkaa/eventgate/internal/api/middleware"
)

type checkInRequest struct {
	QRCode string `json:"qrCode"`
}

type checkInResponse struct {
	Message      string               `json:"message"`
	Registration registrationResponse `json:"registration"`
}

// CheckIn: POST /api/v1/validation/check-in.
// Повторный проход: 409 ALREADY_CHECKED_IN с данными первой отметки.
func (h *APIHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reg, err := h.svc.Gate.CheckIn(r.Context(), req.QRCode, middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInResponse{
		Message:      "Проход отмечен",
		Registration: mapRegistration(reg),
	})
}

type lookupRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Lookup: POST /api/v1/validation/lookup. Только чтение.
func (h *APIHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reg, err := h.svc.Gate.Lookup(r.Context(), req.Type, req.Value)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRegistration(reg))
}
