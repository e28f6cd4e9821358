// audit.go: просмотр журнала аудита (только чтение).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/repository"
)

// AuditQuery: параметры списка записей аудита.
type AuditQuery struct {
	Entity string `json:"entity" validate:"omitempty,oneof=Registration User SystemSettings"`
	Action string `json:"action" validate:"omitempty,oneof=CREATE UPDATE DELETE CHECK_IN EXPORT"`
	UserID string `json:"userId" validate:"omitempty,uuid"`
	Page   int    `json:"page" validate:"gte=1"`
	Limit  int    `json:"limit" validate:"gte=1,lte=100"`
}

// AuditPage: страница журнала аудита.
type AuditPage struct {
	Items      []*model.AuditLogEntry
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// AuditService: чтение журнала аудита.
type AuditService struct {
	repo     repository.AuditLogRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAuditService создаёт сервис журнала аудита.
func NewAuditService(repo repository.AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:     repo,
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "audit_service")),
	}
}

// List возвращает страницу журнала, новые записи первыми.
func (s *AuditService) List(ctx context.Context, q AuditQuery) (*AuditPage, error) {
	if err := validateStruct(s.validate, &q); err != nil {
		return nil, err
	}

	filter := repository.AuditFilter{Entity: q.Entity, UserID: q.UserID}
	if q.Action != "" {
		action := model.AuditAction(q.Action)
		filter.Action = &action
	}

	items, total, err := s.repo.List(ctx, filter, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, fmt.Errorf("журнал аудита: %w", err)
	}
	return &AuditPage{
		Items:      items,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: totalPages(total, q.Limit),
	}, nil
}
