package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrPermanent: постоянная ошибка доставки: повтор не поможет.
var ErrPermanent = errors.New("постоянная ошибка доставки письма")

// HTTPSender доставляет письма через HTTP API почтового провайдера
// (формат Resend: POST /emails с Bearer-ключом).
type HTTPSender struct {
	client *resty.Client
	logger *slog.Logger
}

type apiAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	ContentID   string `json:"content_id,omitempty"`
}

type apiEmail struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Attachments []apiAttachment   `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type apiResult struct {
	ID string `json:"id"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewHTTPSender создаёт HTTP-транспорт. Повторяет запрос при 429 и 5xx.
func NewHTTPSender(baseURL, apiKey string, logger *slog.Logger) *HTTPSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &HTTPSender{
		client: client,
		logger: logger.With(slog.String("component", "email_http")),
	}
}

// Send отправляет письмо. Ответ 4xx (кроме 429): ErrPermanent.
func (s *HTTPSender) Send(ctx context.Context, msg *Message) error {
	payload := apiEmail{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, apiAttachment{
			Filename:    a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
			ContentID:   a.ContentID,
		})
	}
	if msg.Ref != "" {
		payload.Headers = map[string]string{"X-Entity-Ref-ID": msg.Ref}
	}

	var (
		result apiResult
		apiErr apiError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("ошибка вызова почтового API: %w", err)
	}

	if resp.IsError() {
		err := fmt.Errorf("почтовый API вернул %d: %s %s", resp.StatusCode(), apiErr.Name, apiErr.Message)
		if resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return err
	}

	s.logger.Debug("Письмо отправлено через почтовый API",
		slog.String("id", result.ID),
		slog.String("ref", msg.Ref),
	)
	return nil
}
