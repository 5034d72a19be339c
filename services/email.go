package services

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Mailer sends transactional email through SendGrid. A nil Mailer only logs.
type Mailer struct {
	client   *sendgrid.Client
	from     *mail.Email
	frontend string
	logger   *zap.Logger
}

func NewMailer(apiKey, fromAddr, fromName, frontendURL string, logger *zap.Logger) *Mailer {
	return &Mailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     mail.NewEmail(fromName, fromAddr),
		frontend: frontendURL,
		logger:   logger,
	}
}

// Email is set at startup when SENDGRID_API_KEY is present.
var Email *Mailer

func (m *Mailer) send(ctx context.Context, toName, toAddr, subject, plain, htmlBody string) error {
	msg := mail.NewSingleEmail(m.from, subject, mail.NewEmail(toName, toAddr), plain, htmlBody)
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// SendPasswordReset mails the reset link for token.
func (m *Mailer) SendPasswordReset(ctx context.Context, toName, toAddr, token string) error {
	if m == nil {
		zap.L().Info("Email disabled, skipping password reset mail", zap.String("to", toAddr))
		return nil
	}
	link := fmt.Sprintf("%s/aterstall-losenord?token=%s", m.frontend, token)
	plain := fmt.Sprintf("Hej %s!\n\nÅterställ ditt lösenord här: %s\n\nLänken gäller i en timme.", toName, link)
	body := fmt.Sprintf(`<p>Hej %s!</p><p><a href="%s">Återställ ditt lösenord</a></p><p>Länken gäller i en timme.</p>`,
		html.EscapeString(toName), html.EscapeString(link))
	return m.send(ctx, toName, toAddr, "Återställ ditt lösenord", plain, body)
}

// SendOrderConfirmation tells the buyer the course is unlocked.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, toName, toAddr, courseTitle, courseSlug string) error {
	if m == nil {
		zap.L().Info("Email disabled, skipping order confirmation", zap.String("to", toAddr))
		return nil
	}
	link := fmt.Sprintf("%s/kurser/%s", m.frontend, courseSlug)
	plain := fmt.Sprintf("Tack för ditt köp!\n\nKursen %s är nu upplåst: %s", courseTitle, link)
	body := fmt.Sprintf(`<p>Tack för ditt köp!</p><p>Kursen <strong>%s</strong> är nu upplåst. <a href="%s">Börja här</a>.</p>`,
		html.EscapeString(courseTitle), html.EscapeString(link))
	return m.send(ctx, toName, toAddr, "Din kurs är upplåst", plain, body)
}
