// internal/workers/alert_notification_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockflow/internal/core/domain"
)

// NotificationConfig configures alert mail delivery. Without an SMTP
// address or recipients, notifications are only logged.
type NotificationConfig struct {
	Environment string
	SMTPAddr    string
	From        string
	Recipients  []string
}

// AlertNotificationProcessor handles alert notifications
type AlertNotificationProcessor struct {
	config   NotificationConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger   *slog.Logger
}

// NewAlertNotificationProcessor creates a new notification processor
func NewAlertNotificationProcessor(config NotificationConfig, logger *slog.Logger) *AlertNotificationProcessor {
	return &AlertNotificationProcessor{
		config:   config,
		sendMail: smtp.SendMail,
		logger:   logger.With(slog.String("processor", "alert_notification")),
	}
}

// ProcessAlertRaised handles events.TypeAlertRaised tasks
func (p *AlertNotificationProcessor) ProcessAlertRaised(ctx context.Context, t *asynq.Task) error {
	var alert domain.Alert
	if err := decodePayload(t, &alert); err != nil {
		return err
	}

	subject, body := alertMessage(&alert)

	if p.config.Environment == "development" || p.config.SMTPAddr == "" || len(p.config.Recipients) == 0 {
		p.logger.InfoContext(ctx, "alert notification would be sent",
			slog.Int64("alert_id", alert.ID),
			slog.String("subject", subject),
			slog.Any("recipients", p.config.Recipients))
		return nil
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		p.config.From, strings.Join(p.config.Recipients, ", "), subject, body,
	))

	if err := p.sendMail(p.config.SMTPAddr, nil, p.config.From, p.config.Recipients, msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	p.logger.InfoContext(ctx, "alert notification sent",
		slog.Int64("alert_id", alert.ID),
		slog.Int("recipients", len(p.config.Recipients)))
	return nil
}

func alertMessage(a *domain.Alert) (subject, body string) {
	subject = fmt.Sprintf("[stockflow] %s: product %d in warehouse %d", a.Kind, a.ProductID, a.WarehouseID)
	body = fmt.Sprintf(
		"Product %d in warehouse %d is at %d units (threshold %d).\r\nAlert %d raised at %s.",
		a.ProductID, a.WarehouseID, a.Quantity, a.Threshold, a.ID, a.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	)
	return subject, body
}
