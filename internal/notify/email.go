package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

// EmailNotifier sends the run summary as a plain-text mail over SMTP.
type EmailNotifier struct {
	cfg    common.EmailConfig
	send   func(addr, from, to string, msg []byte) error
	logger arbor.ILogger
}

// NewEmailNotifier creates the email backend.
func NewEmailNotifier(cfg common.EmailConfig, logger arbor.ILogger) *EmailNotifier {
	return &EmailNotifier{
		cfg: cfg,
		send: func(addr, from, to string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, []string{to}, msg)
		},
		logger: logger,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, project string, results []*models.TestResult, opened, resolved []*models.Issue) error {
	msg, err := e.buildMessage(project, results, opened, resolved)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)
	if err := e.send(addr, e.cfg.From, e.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	e.logger.Info().Str("project", project).Str("to", e.cfg.To).Msg("Run summary mailed")
	return nil
}

// buildMessage assembles the MIME message.
func (e *EmailNotifier) buildMessage(project string, results []*models.TestResult, opened, resolved []*models.Issue) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: e.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: e.cfg.To}})
	h.SetSubject(fmt.Sprintf("sitewarden: %s run summary (%d new, %d resolved)", project, len(opened), len(resolved)))

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline part: %w", err)
	}
	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(pw, summaryText(project, results, opened, resolved)); err != nil {
		return nil, err
	}
	pw.Close()
	tw.Close()
	mw.Close()

	return buf.Bytes(), nil
}
