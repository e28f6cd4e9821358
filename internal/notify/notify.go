// Пакет notify: формирование и доставка писем участникам и сотрудникам.
//
// Письмо рендерится один раз (HTML + вложения с QR-кодами) и передаётся
// транспорту: SMTP, HTTP API почтового провайдера или очереди RabbitMQ,
// из которой его забирает фоновый обработчик.
package notify

import (
	"context"
	"log/slog"
)

// Attachment: вложение письма. Непустой ContentID делает вложение
// встроенным (inline): на него ссылаются из HTML как cid:<ContentID>.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId,omitempty"`
	Content     []byte `json:"content"`
}

// Message: готовое к отправке письмо.
type Message struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Ref: идентификатор связанной сущности (для заголовка X-Entity-Ref-ID и логов)
	Ref string `json:"ref,omitempty"`
}

// Sender: транспорт доставки писем.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// NoopSender не отправляет письма, а только логирует их.
type NoopSender struct {
	logger *slog.Logger
}

// NewNoopSender создаёт транспорт-заглушку.
func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger.With(slog.String("component", "email_noop"))}
}

// Send логирует пропуск отправки.
func (s *NoopSender) Send(_ context.Context, msg *Message) error {
	s.logger.Warn("Почтовый транспорт не настроен, письмо не отправлено",
		slog.String("subject", msg.Subject),
		slog.Int("recipients", len(msg.To)),
	)
	return nil
}
