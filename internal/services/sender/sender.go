// Package sender отправляет административные оповещения администраторам по почте.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/smtp"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

const (
	subjectPrefix = "[GoFlexConnect] "
	sendTimeout   = 30 * time.Second
)

// SenderService рассылка оповещений.
type SenderService struct {
	transport    smtp.TransportInterface
	recipients   []string
	dashboardURL string
	log          *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, recipients []string, dashboardURL string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:    transport,
		recipients:   recipients,
		dashboardURL: dashboardURL,
		log:          log,
	}
}

// SendAdminAlert обработчик сообщения из очереди оповещений.
func (s *SenderService) SendAdminAlert(body []byte) error {
	const op = "sender.SendAdminAlert"
	var alert models.Alert
	if err := json.Unmarshal(body, &alert); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(s.recipients) == 0 {
		s.log.Warn("no admin recipients configured, dropping alert",
			slog.String("op", op), slog.String("kind", string(alert.Kind())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return s.sendEmail(ctx, s.recipients, Subject(alert), Body(alert, s.dashboardURL))
}

// Subject тема письма по виду оповещения.
func Subject(alert models.Alert) string {
	switch p := alert.Payload.(type) {
	case models.NewUserPayload:
		return subjectPrefix + "New user registered: " + orDefault(p.Email, "Unknown")
	case models.UsageThresholdPayload:
		return subjectPrefix + "Usage warning for " + orDefault(p.Email, "user")
	case models.BadSurveyQualityPayload:
		return subjectPrefix + "Survey quality issue detected"
	default:
		return subjectPrefix + "System alert"
	}
}

// Body текст письма: заголовок, сообщение, данные оповещения и ссылка на панель.
func Body(alert models.Alert, dashboardURL string) string {
	var b strings.Builder
	b.WriteString(alert.Title)
	b.WriteString("\n\n")
	b.WriteString(alert.Message)
	b.WriteString("\n")
	if alert.Payload != nil {
		if details, err := json.MarshalIndent(alert.Payload, "", "  "); err == nil {
			b.WriteString("\nAdditional Details:\n")
			b.Write(details)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n---\nView full details in the Admin Dashboard:\n")
	b.WriteString(strings.TrimRight(dashboardURL, "/") + "/#/admin")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (s *SenderService) sendEmail(ctx context.Context, to []string, subject, bodyText string) error {
	const op = "sender.sendEmail"
	from := s.transport.From()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect(ctx)
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("email sent successfully", slog.Any("to", to), slog.String("subject", subject))
	return nil
}
