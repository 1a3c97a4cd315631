package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/cradoe/fundsrail/internal/models"
	"github.com/cradoe/fundsrail/internal/smtp"
)

type UserSource interface {
	GetOne(ctx context.Context, id string) (*models.User, bool, error)
}

// MailSink e-mails the owner of the transaction.
type MailSink struct {
	users   UserSource
	mailer  smtp.MailerInterface
	baseURL string
}

func NewMailSink(users UserSource, mailer smtp.MailerInterface, baseURL string) *MailSink {
	return &MailSink{users: users, mailer: mailer, baseURL: baseURL}
}

func (s *MailSink) Notify(ctx context.Context, event Event) error {
	user, found, err := s.users.GetOne(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if !found || user.Email == "" {
		return nil
	}

	template := "transfer-status.tmpl"
	if event.Type == EventSettlementComplete {
		template = "transfer-settled.tmpl"
	}

	data := map[string]any{
		"BaseURL":   s.baseURL,
		"Name":      user.FirstName,
		"Type":      strings.ReplaceAll(event.TransferType, "_", " "),
		"Amount":    event.Amount,
		"Asset":     event.Asset,
		"Status":    event.Status,
		"Reason":    event.Reason,
		"Reference": event.Reference,
	}

	return s.mailer.Send(ctx, user.Email, data, template)
}
