package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Mailer формирует письма и передаёт их транспорту.
type Mailer struct {
	renderer *Renderer
	sender   Sender
	logger   *slog.Logger
}

// NewMailer создаёт Mailer.
func NewMailer(renderer *Renderer, sender Sender, logger *slog.Logger) *Mailer {
	return &Mailer{
		renderer: renderer,
		sender:   sender,
		logger:   logger.With(slog.String("component", "mailer")),
	}
}

// SendRegistration отправляет одно письмо со всеми участниками регистрации.
func (m *Mailer) SendRegistration(ctx context.Context, to string, event EventInfo, people []Person) error {
	msg, err := m.renderer.Registration(to, event, people)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("ошибка отправки письма о регистрации: %w", err)
	}
	m.logger.Info("Письмо о регистрации отправлено",
		slog.String("ref", msg.Ref),
		slog.Int("people", len(people)),
	)
	return nil
}

// SendInvite отправляет приглашение на мероприятие.
func (m *Mailer) SendInvite(ctx context.Context, to, inviterName, registerURL string, event EventInfo) error {
	msg, err := m.renderer.Invite(to, inviterName, registerURL, event)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("ошибка отправки приглашения: %w", err)
	}
	return nil
}
