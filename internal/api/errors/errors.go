// Пакет errors: ответы с ошибками в едином формате eventgate:
// {"error": {"code": "...", "message": "...", "details": ...}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/eventgate/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeRegistrationClosed    = "REGISTRATION_CLOSED"
	CodeCapacityReached       = "CAPACITY_REACHED"
	CodeAlreadyCheckedIn      = "ALREADY_CHECKED_IN"
	CodeRegistrationCancelled = "REGISTRATION_CANCELLED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInternalError         = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteErrorDetails(w, statusCode, code, message, nil)
}

// WriteErrorDetails: WriteError с дополнительными деталями.
func WriteErrorDetails(w http.ResponseWriter, statusCode int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError: 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound: 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized: 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden: 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// RateLimited: 429 превышен лимит запросов.
func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError: 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// checkInDetails: факты предыдущего прохода в ответе ALREADY_CHECKED_IN.
type checkInDetails struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	AgeGroup    string `json:"ageGroup"`
	CheckedInAt string `json:"checkedInAt"`
}

// WriteServiceError переводит ошибку сервисного слоя в HTTP-ответ по её виду.
// Ошибки без вида логируются и отдаются как 500 без подробностей.
func WriteServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	se, ok := service.AsError(err)
	if !ok {
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	switch se.Kind {
	case service.KindValidation:
		var details any
		if len(se.Fields) > 0 {
			details = map[string]any{"fields": se.Fields}
		}
		WriteErrorDetails(w, http.StatusBadRequest, CodeValidationError, se.Message, details)
	case service.KindConflict:
		WriteError(w, http.StatusConflict, CodeConflict, se.Message)
	case service.KindClosed:
		WriteError(w, http.StatusForbidden, CodeRegistrationClosed, se.Message)
	case service.KindCapacity:
		WriteError(w, http.StatusConflict, CodeCapacityReached, se.Message)
	case service.KindNotFound:
		NotFound(w, se.Message)
	case service.KindAlreadyCheckedIn:
		var details any
		if se.CheckIn != nil {
			details = checkInDetails{
				ID:          se.CheckIn.ID,
				FullName:    se.CheckIn.FullName,
				AgeGroup:    string(se.CheckIn.AgeGroup),
				CheckedInAt: se.CheckIn.CheckedInAt.UTC().Format(time.RFC3339),
			}
		}
		WriteErrorDetails(w, http.StatusConflict, CodeAlreadyCheckedIn, se.Message, details)
	case service.KindCancelled:
		WriteError(w, http.StatusConflict, CodeRegistrationCancelled, se.Message)
	case service.KindUnauthorized:
		Unauthorized(w, se.Message)
	case service.KindForbidden:
		Forbidden(w, se.Message)
	default:
		logger.Error("Неизвестный вид ошибки", slog.String("kind", string(se.Kind)), slog.String("error", err.Error()))
		InternalError(w, "Внутренняя ошибка сервера")
	}
}
