// registrations.go: административная работа с регистрациями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/status"
	"github.com/bigkaa/eventgate/internal/repository"
)

// Значение фильтра «все».
const filterAll = "ALL"

// ListQuery: параметры списка регистраций.
type ListQuery struct {
	Query     string `json:"query" validate:"max=200"`
	Status    string `json:"status" validate:"omitempty,oneof=REGISTERED CHECKED_IN CANCELLED ALL"`
	AgeGroup  string `json:"ageGroup" validate:"omitempty,oneof=KIDS YOUTH ADULT SENIOR ALL"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Page      int    `json:"page" validate:"gte=1"`
	Limit     int    `json:"limit" validate:"gte=1,lte=100"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=fullName email ageGroup status createdAt"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// DefaultListQuery: параметры списка по умолчанию.
func DefaultListQuery() ListQuery {
	return ListQuery{Page: 1, Limit: 20, SortBy: "createdAt", SortOrder: "desc"}
}

// RegistrationPage: страница списка регистраций.
type RegistrationPage struct {
	Items      []*model.Registration
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// RegistrationService: просмотр, изменение статуса и удаление регистраций.
type RegistrationService struct {
	regs     repository.RegistrationRepository
	validate *validator.Validate
	loc      *time.Location
	logger   *slog.Logger
}

// NewRegistrationService создаёт сервис регистраций.
// loc: часовой пояс мероприятия для фильтра по дате.
func NewRegistrationService(regs repository.RegistrationRepository, loc *time.Location, logger *slog.Logger) *RegistrationService {
	return &RegistrationService{
		regs:     regs,
		validate: newValidator(),
		loc:      loc,
		logger:   logger.With(slog.String("component", "registration_service")),
	}
}

// Get возвращает регистрацию с данными отметившего сотрудника.
func (s *RegistrationService) Get(ctx context.Context, id string) (*model.Registration, error) {
	if uuid.Validate(id) != nil {
		return nil, newError(KindNotFound, "регистрация не найдена")
	}
	reg, err := s.regs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "регистрация не найдена")
		}
		return nil, fmt.Errorf("получение регистрации: %w", err)
	}
	return reg, nil
}

// List возвращает страницу регистраций по фильтрам.
func (s *RegistrationService) List(ctx context.Context, q ListQuery) (*RegistrationPage, error) {
	if err := validateStruct(s.validate, q); err != nil {
		return nil, err
	}

	filter, err := s.buildFilter(q.Query, q.Status, q.AgeGroup, q.Date)
	if err != nil {
		return nil, err
	}

	opts := repository.ListOptions{
		Sort:   repository.SortField(q.SortBy),
		Desc:   q.SortOrder != "asc",
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	}
	if opts.Sort == "" {
		opts.Sort = repository.SortCreatedAt
	}

	items, total, err := s.regs.List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("список регистраций: %w", err)
	}

	return &RegistrationPage{
		Items:      items,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: totalPages(total, q.Limit),
	}, nil
}

// buildFilter преобразует параметры запроса в фильтр репозитория.
// date: календарный день в часовом поясе мероприятия.
func (s *RegistrationService) buildFilter(query, st, ageGroup, date string) (repository.RegistrationFilter, error) {
	filter := repository.RegistrationFilter{Query: strings.TrimSpace(query)}

	if st != "" && st != filterAll {
		v := model.Status(st)
		filter.Status = &v
	}
	if ageGroup != "" && ageGroup != filterAll {
		v := model.AgeGroup(ageGroup)
		filter.AgeGroup = &v
	}
	if date != "" {
		day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
		if err != nil {
			return filter, validationError(map[string]string{"date": "ожидается формат YYYY-MM-DD"})
		}
		next := day.AddDate(0, 0, 1)
		filter.CreatedFrom = &day
		filter.CreatedTo = &next
	}
	return filter, nil
}

// UpdateStatus меняет статус по общему автомату состояний.
// Переход в текущий статус: no-op без записи аудита.
func (s *RegistrationService) UpdateStatus(ctx context.Context, id, newStatus string, actor *model.User) (*model.Registration, error) {
	to, err := status.Parse(newStatus)
	if err != nil {
		return nil, validationError(map[string]string{"status": transitionMessage(err)})
	}
	if uuid.Validate(id) != nil {
		return nil, newError(KindNotFound, "регистрация не найдена")
	}

	reg, changed, err := s.regs.UpdateStatus(ctx, id, to, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "регистрация не найдена")
		}
		var te *status.TransitionError
		if errors.As(err, &te) {
			return nil, validationError(map[string]string{"status": te.Message})
		}
		return nil, fmt.Errorf("изменение статуса: %w", err)
	}

	if changed {
		s.logger.Info("Статус регистрации изменён",
			slog.String("registration_id", id),
			slog.String("status", string(to)),
			slog.String("user_id", actor.ID),
		)
	}

	// Повторное чтение: чтобы вернуть данные отметившего сотрудника
	return s.Get(ctx, reg.ID)
}

// Delete удаляет регистрацию (с записью аудита).
func (s *RegistrationService) Delete(ctx context.Context, id string, actor *model.User) error {
	if uuid.Validate(id) != nil {
		return newError(KindNotFound, "регистрация не найдена")
	}
	if err := s.regs.Delete(ctx, id, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, "регистрация не найдена")
		}
		return fmt.Errorf("удаление регистрации: %w", err)
	}

	s.logger.Info("Регистрация удалена",
		slog.String("registration_id", id),
		slog.String("user_id", actor.ID),
	)
	return nil
}

func transitionMessage(err error) string {
	var te *status.TransitionError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

// totalPages: количество страниц размера limit для total записей.
func totalPages(total, limit int) int {
	return (total + limit - 1) / limit
}
