// Публичные endpoints без сессии: регистрация, проверка
// дубликатов, автозаполнение по QID, сведения о мероприятии и табло.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/service"
)

type intakeResponse struct {
	ID          string       `json:"id"`
	AccessToken string       `json:"accessToken"`
	FamilyCount int          `json:"familyCount"`
	Status      model.Status `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	Message     string       `json:"message"`
}

// CreateRegistration: POST /api/v1/registrations.
func (h *APIHandler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Intake.Submit(r.Context(), &req)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, intakeResponse{
		ID:          res.Primary.ID,
		AccessToken: res.Primary.AccessToken,
		FamilyCount: res.FamilyCount(),
		Status:      res.Primary.Status,
		CreatedAt:   res.Primary.CreatedAt,
		Message:     "Регистрация выполнена. QR-код отправлен на email.",
	})
}

type checkDuplicateRequest struct {
	QID   string `json:"qid"`
	Email string `json:"email"`
}

type checkDuplicateResponse struct {
	QIDExists   bool `json:"qidExists"`
	EmailExists bool `json:"emailExists"`
}

// CheckDuplicate: POST /api/v1/registrations/check-duplicate.
func (h *APIHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req checkDuplicateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Intake.CheckDuplicate(r.Context(), req.QID, req.Email)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkDuplicateResponse{QIDExists: res.QIDExists, EmailExists: res.EmailExists})
}

type qidPrefillResponse struct {
	Valid       bool           `json:"valid"`
	BirthYear   *int           `json:"birthYear,omitempty"`
	CountryCode string         `json:"countryCode,omitempty"`
	Nationality string         `json:"nationality,omitempty"`
	AgeGroup    model.AgeGroup `json:"ageGroup,omitempty"`
}

// QIDPrefill: GET /api/v1/public/qid/{qid}.
// Невалидный QID не считается ошибкой, ответ {"valid": false}.
func (h *APIHandler) QIDPrefill(w http.ResponseWriter, r *http.Request) {
	p := h.svc.Intake.Prefill(chi.URLParam(r, "qid"))

	resp := qidPrefillResponse{Valid: p.Valid}
	if p.Valid {
		year := p.BirthYear
		resp.BirthYear = &year
		resp.CountryCode = p.CountryCode
		resp.Nationality = p.Country
		resp.AgeGroup = p.AgeGroup
	}
	writeJSON(w, http.StatusOK, resp)
}

type eventInfoResponse struct {
	Name             string  `json:"name"`
	Date             *string `json:"date"`
	Location         string  `json:"location"`
	ContactEmail     string  `json:"contactEmail"`
	RegistrationOpen bool    `json:"registrationOpen"`
}

// PublicEvent: GET /api/v1/public/event.
func (h *APIHandler) PublicEvent(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings.Get(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}

	resp := eventInfoResponse{
		Name:             s.EventName,
		Location:         s.EventLocation,
		ContactEmail:     s.ContactEmail,
		RegistrationOpen: s.RegistrationOpen,
	}
	if s.EventDate != nil {
		d := s.EventDate.Format(time.DateOnly)
		resp.Date = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

// PublicStats: GET /api/v1/public/stats.
func (h *APIHandler) PublicStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats.Public(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPublicStats(stats))
}
