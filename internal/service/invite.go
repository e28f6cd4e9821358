// invite.go: приглашения на регистрацию по email.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/notify"
)

// InviteMailer: отправка письма-приглашения.
type InviteMailer interface {
	SendInvite(ctx context.Context, to, inviterName, registerURL string, event notify.EventInfo) error
}

// InviteRequest: приглашение.
type InviteRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	InviterName string `json:"inviterName" validate:"omitempty,max=100"`
}

// InviteService: отправка приглашений от имени сотрудника.
type InviteService struct {
	settings  *SettingsService
	mailer    InviteMailer
	publicURL string
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewInviteService создаёт сервис приглашений.
// publicURL: адрес публичной формы регистрации.
func NewInviteService(settings *SettingsService, mailer InviteMailer, publicURL string, logger *slog.Logger) *InviteService {
	return &InviteService{
		settings:  settings,
		mailer:    mailer,
		publicURL: publicURL,
		validate:  newValidator(),
		logger:    logger.With(slog.String("component", "invite_service")),
	}
}

// Send отправляет приглашение синхронно: ошибка доставки возвращается вызывающему.
func (s *InviteService) Send(ctx context.Context, req *InviteRequest, actor *model.User) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.InviterName = strings.TrimSpace(req.InviterName)
	if err := validateStruct(s.validate, req); err != nil {
		return err
	}
	if req.InviterName == "" {
		req.InviterName = actor.Name
	}

	event, err := s.settings.EventInfo(ctx)
	if err != nil {
		return err
	}

	if err := s.mailer.SendInvite(ctx, req.Email, req.InviterName, s.publicURL+"/register", event); err != nil {
		return fmt.Errorf("отправка приглашения: %w", err)
	}

	s.logger.Info("Приглашение отправлено",
		slog.String("user_id", actor.ID),
	)
	return nil
}
