// users.go: управление сотрудниками и разрешение принципала из JWT.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/repository"
)

// CreateUserRequest: создание сотрудника.
type CreateUserRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Role  string `json:"role" validate:"required,oneof=ADMIN MANAGER VALIDATOR"`
}

// UpdateUserRequest: частичное изменение сотрудника (nil, не меняется).
type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Role     *string `json:"role" validate:"omitempty,oneof=ADMIN MANAGER VALIDATOR"`
	IsActive *bool   `json:"isActive"`
}

// UserService: сотрудники (локальная таблица users).
type UserService struct {
	repo     repository.UserRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewUserService создаёт сервис сотрудников.
func NewUserService(repo repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает всех сотрудников с количеством отмеченных проходов.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список сотрудников: %w", err)
	}
	return users, nil
}

// Get возвращает сотрудника по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	if uuid.Validate(id) != nil {
		return nil, newError(KindNotFound, "сотрудник не найден")
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "сотрудник не найден")
		}
		return nil, fmt.Errorf("получение сотрудника: %w", err)
	}
	return u, nil
}

// Create создаёт сотрудника. Subject привязывается при первом входе.
func (s *UserService) Create(ctx context.Context, req *CreateUserRequest, actor *model.User) (*model.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	u := &model.User{
		Email:    req.Email,
		Name:     req.Name,
		Role:     req.Role,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, u, actor.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, &Error{Kind: KindConflict, Message: "сотрудник с таким email уже существует", Field: "email", Err: err}
		}
		return nil, fmt.Errorf("создание сотрудника: %w", err)
	}

	s.logger.Info("Сотрудник создан",
		slog.String("user_id", u.ID),
		slog.String("role", u.Role),
		slog.String("created_by", actor.ID),
	)
	return u, nil
}

// Update изменяет сотрудника. Собственную учётную запись менять нельзя.
func (s *UserService) Update(ctx context.Context, id string, req *UpdateUserRequest, actor *model.User) (*model.User, error) {
	if id == actor.ID {
		return nil, newError(KindForbidden, "нельзя изменить собственную учётную запись")
	}
	if req.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &v
	}
	if req.Name != nil {
		v := strings.TrimSpace(*req.Name)
		req.Name = &v
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if req.Email != nil && *req.Email != u.Email {
		u.Email = *req.Email
		changes["email"] = u.Email
	}
	if req.Name != nil && *req.Name != u.Name {
		u.Name = *req.Name
		changes["name"] = u.Name
	}
	if req.Role != nil && *req.Role != u.Role {
		changes["role"] = *req.Role
		changes["previousRole"] = u.Role
		u.Role = *req.Role
	}
	if req.IsActive != nil && *req.IsActive != u.IsActive {
		u.IsActive = *req.IsActive
		changes["isActive"] = u.IsActive
	}
	if len(changes) == 0 {
		return u, nil
	}

	if err := s.repo.Update(ctx, u, actor.ID, changes); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, newError(KindNotFound, "сотрудник не найден")
		case errors.Is(err, repository.ErrConflict):
			return nil, &Error{Kind: KindConflict, Message: "сотрудник с таким email уже существует", Field: "email", Err: err}
		}
		return nil, fmt.Errorf("изменение сотрудника: %w", err)
	}

	s.logger.Info("Сотрудник изменён",
		slog.String("user_id", u.ID),
		slog.Any("changes", changes),
		slog.String("updated_by", actor.ID),
	)
	return u, nil
}

// Deactivate отключает сотрудника. Собственную учётную запись отключить нельзя.
func (s *UserService) Deactivate(ctx context.Context, id string, actor *model.User) error {
	if id == actor.ID {
		return newError(KindForbidden, "нельзя отключить собственную учётную запись")
	}
	if uuid.Validate(id) != nil {
		return newError(KindNotFound, "сотрудник не найден")
	}
	if err := s.repo.Deactivate(ctx, id, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, "сотрудник не найден")
		}
		return fmt.Errorf("отключение сотрудника: %w", err)
	}

	s.logger.Info("Сотрудник отключён",
		slog.String("user_id", id),
		slog.String("deactivated_by", actor.ID),
	)
	return nil
}

// ResolvePrincipal находит сотрудника по subject из JWT. При первом входе
// subject привязывается к строке с тем же email. Неизвестный или
// отключённый сотрудник получает Forbidden.
func (s *UserService) ResolvePrincipal(ctx context.Context, subject, email string) (*model.User, error) {
	if subject == "" {
		return nil, newError(KindUnauthorized, "в токене отсутствует subject")
	}

	u, err := s.repo.GetBySubject(ctx, subject)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = s.linkByEmail(ctx, subject, email)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Вход неизвестного сотрудника",
				slog.String("subject", subject),
			)
			return nil, newError(KindForbidden, "доступ запрещён")
		}
		return nil, fmt.Errorf("разрешение принципала: %w", err)
	}

	if !u.IsActive {
		return nil, newError(KindForbidden, "учётная запись отключена")
	}

	if err := s.repo.TouchLogin(ctx, u.ID); err != nil {
		s.logger.Warn("Не удалось обновить время входа",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}
	return u, nil
}

func (s *UserService) linkByEmail(ctx context.Context, subject, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, repository.ErrNotFound
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Subject != nil {
		// Email уже привязан к другому subject
		return nil, repository.ErrNotFound
	}
	if err := s.repo.LinkSubject(ctx, u.ID, subject); err != nil {
		return nil, err
	}
	u.Subject = &subject

	s.logger.Info("Subject привязан к сотруднику",
		slog.String("user_id", u.ID),
		slog.String("subject", subject),
	)
	return u, nil
}

// EnsureBootstrapAdmin создаёт администратора с email, если его ещё нет.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	name, _, _ := strings.Cut(email, "@")
	created, err := s.repo.EnsureAdmin(ctx, email, name)
	if err != nil {
		return fmt.Errorf("создание администратора: %w", err)
	}
	if created {
		s.logger.Info("Создан начальный администратор", slog.String("email", email))
	}
	return nil
}
