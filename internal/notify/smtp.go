package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

// SMTPConfig: параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// SMTPSender доставляет письма через SMTP (STARTTLS, если сервер его поддерживает).
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender создаёт SMTP-транспорт.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{cfg: cfg, logger: logger.With(slog.String("component", "email_smtp"))}
}

// Send отправляет письмо.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("некорректный адрес отправителя %q: %w", msg.From, err)
	}

	body, err := buildMIME(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ошибка подключения к SMTP %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ошибка SMTP-приветствия: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("ошибка STARTTLS: %w", err)
		}
	}
	if s.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("ошибка SMTP-аутентификации: %w", err)
		}
	}

	if err := c.Mail(from.Address); err != nil {
		return fmt.Errorf("ошибка MAIL FROM: %w", err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("ошибка RCPT TO %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("ошибка DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("ошибка записи письма: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ошибка завершения письма: %w", err)
	}

	s.logger.Debug("Письмо отправлено через SMTP",
		slog.String("subject", msg.Subject),
		slog.String("ref", msg.Ref),
	)
	return c.Quit()
}

// buildMIME собирает письмо multipart/related: HTML + встроенные вложения.
func buildMIME(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("From", msg.From)
	for _, to := range msg.To {
		header.Add("To", to)
	}
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", fmt.Sprintf(`multipart/related; boundary="%s"`, mw.Boundary()))
	if msg.Ref != "" {
		header.Set("X-Entity-Ref-ID", msg.Ref)
	}

	var head bytes.Buffer
	for _, k := range []string{"From", "To", "Subject", "Date", "MIME-Version", "Content-Type", "X-Entity-Ref-ID"} {
		for _, v := range header.Values(k) {
			fmt.Fprintf(&head, "%s: %s\r\n", k, v)
		}
	}
	head.WriteString("\r\n")

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования HTML-части: %w", err)
	}
	qp := quotedprintable.NewWriter(htmlPart)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("ошибка кодирования HTML-части: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("ошибка кодирования HTML-части: %w", err)
	}

	for _, a := range msg.Attachments {
		h := textproto.MIMEHeader{
			"Content-Type":              {a.ContentType},
			"Content-Transfer-Encoding": {"base64"},
		}
		if a.ContentID != "" {
			h.Set("Content-ID", "<"+a.ContentID+">")
			h.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, a.Filename))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Filename))
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("ошибка формирования вложения %s: %w", a.Filename, err)
		}
		if err := writeBase64Lines(part, a.Content); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения MIME: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

// writeBase64Lines пишет base64 строками по 76 символов (RFC 2045).
func writeBase64Lines(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := min(76, len(enc))
		if _, err := w.Write([]byte(enc[:n] + "\r\n")); err != nil {
			return fmt.Errorf("ошибка записи вложения: %w", err)
		}
		enc = enc[n:]
	}
	return nil
}
