// handler.go: основной обработчик API eventgate.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/eventgate/internal/api/errors"
	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/qid"
	"github.com/bigkaa/eventgate/internal/notify"
	"github.com/bigkaa/eventgate/internal/service"
)

// maxBodyBytes: предельный размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// Сервисы, от которых зависят обработчики. Реализуются пакетом service.
type (
	Intake interface {
		Submit(ctx context.Context, req *service.IntakeRequest) (*service.IntakeResult, error)
		CheckDuplicate(ctx context.Context, rawQID, email string) (*service.DuplicateCheck, error)
		Prefill(raw string) qid.Prefill
	}

	Gate interface {
		CheckIn(ctx context.Context, code string, actor *model.User) (*model.Registration, error)
		Lookup(ctx context.Context, lookupType, value string) (*model.Registration, error)
	}

	Registrations interface {
		Get(ctx context.Context, id string) (*model.Registration, error)
		List(ctx context.Context, q service.ListQuery) (*service.RegistrationPage, error)
		UpdateStatus(ctx context.Context, id, newStatus string, actor *model.User) (*model.Registration, error)
		Delete(ctx context.Context, id string, actor *model.User) error
	}

	Exporter interface {
		Export(ctx context.Context, req service.ExportRequest, actor *model.User) (*service.ExportFile, error)
	}

	Stats interface {
		Dashboard(ctx context.Context) (*service.DashboardStats, error)
		Public(ctx context.Context) (*service.PublicStats, error)
	}

	Users interface {
		List(ctx context.Context) ([]*model.User, error)
		Get(ctx context.Context, id string) (*model.User, error)
		Create(ctx context.Context, req *service.CreateUserRequest, actor *model.User) (*model.User, error)
		Update(ctx context.Context, id string, req *service.UpdateUserRequest, actor *model.User) (*model.User, error)
		Deactivate(ctx context.Context, id string, actor *model.User) error
	}

	Settings interface {
		Get(ctx context.Context) (*model.SystemSettings, error)
		Update(ctx context.Context, upd *service.SettingsUpdate, actor *model.User) (*model.SystemSettings, error)
		EventInfo(ctx context.Context) (notify.EventInfo, error)
	}

	Audit interface {
		List(ctx context.Context, q service.AuditQuery) (*service.AuditPage, error)
	}

	Inviter interface {
		Send(ctx context.Context, req *service.InviteRequest, actor *model.User) error
	}

	// PrincipalCache: кэш принципалов JWT middleware; сбрасывается
	// после изменения или отключения сотрудника.
	PrincipalCache interface {
		Forget(subject string)
	}
)

// Services: зависимости APIHandler.
type Services struct {
	Intake        Intake
	Gate          Gate
	Registrations Registrations
	Export        Exporter
	Stats         Stats
	Users         Users
	Settings      Settings
	Audit         Audit
	Invite        Inviter
	Principals    PrincipalCache
}

// APIHandler: основной обработчик API eventgate.
type APIHandler struct {
	svc            Services
	streamInterval time.Duration
	logger         *slog.Logger

	// streamsDone закрывается при остановке сервера и завершает SSE-потоки
	streamsDone chan struct{}
	closeOnce   sync.Once
}

// NewAPIHandler создаёт основной обработчик API.
// streamInterval: период событий SSE-потока публичной статистики.
func NewAPIHandler(svc Services, streamInterval time.Duration, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		svc:            svc,
		streamInterval: streamInterval,
		logger:         logger.With(slog.String("component", "api_handler")),
		streamsDone:    make(chan struct{}),
	}
}

// CloseStreams завершает открытые SSE-потоки: http.Server.Shutdown
// не отменяет контексты активных запросов.
func (h *APIHandler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst. Неизвестные поля допускаются,
// второй JSON-документ в теле: ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			apierrors.ValidationError(w, "Слишком большое тело запроса")
		case errors.Is(err, io.EOF):
			apierrors.ValidationError(w, "Пустое тело запроса")
		default:
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		}
		return false
	}
	if dec.More() {
		apierrors.ValidationError(w, "Некорректный JSON: лишние данные после объекта")
		return false
	}
	return true
}

// bindQuery связывает необязательный query-параметр (form, explode) с dst.
// Отсутствующий параметр оставляет dst без изменений; ошибка формата
// превращается в VALIDATION_ERROR с именем параметра.
func bindQuery[T any](w http.ResponseWriter, query url.Values, name string, dst *T) bool {
	var v *T
	if err := runtime.BindQueryParameter("form", true, false, name, query, &v); err != nil {
		apierrors.WriteErrorDetails(w, http.StatusBadRequest, apierrors.CodeValidationError,
			fmt.Sprintf("Некорректный параметр %s", name),
			map[string]any{"fields": map[string]string{name: err.Error()}},
		)
		return false
	}
	if v != nil {
		*dst = *v
	}
	return true
}

// serviceError пишет ошибку сервисного слоя.
func (h *APIHandler) serviceError(w http.ResponseWriter, err error) {
	apierrors.WriteServiceError(w, h.logger, err)
}
